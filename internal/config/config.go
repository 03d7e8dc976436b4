// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the results database and artifacts
	PanelPath   string // Path to the wide-format price/volume CSV
	LogLevel    string
	Port        int
	DevMode     bool
	RunSchedule string // Optional cron expression for scheduled re-runs in serve mode
	RunOnStart  bool   // Kick off a run immediately when serve mode starts

	Simulation SimulationConfig
	Backup     *BackupConfig
}

// SimulationConfig holds the walk-forward simulation parameters, all
// configurable via environment variables.
type SimulationConfig struct {
	Horizon        int     // Forecast horizon in trading days
	SequenceLength int     // Window length fed to the recurrent encoder
	TrainFraction  float64 // Fraction of windows forming the initial training set
	BatchSize      int     // Mini-batch size (order-preserving, no shuffling)
	MaxEpochs      int     // Upper bound on training epochs per step
	Patience       int     // Early-stopping patience in epochs
	LearningRate   float64
	HiddenSize     int     // Recurrent hidden state width
	Layers         int     // Recurrent layer count
	Dropout        float64 // Dropout probability (inter-layer and MC unit)
	MCSamples      int     // Monte Carlo dropout sample count
	DirLossWeight  float64 // Weight of the directional BCE loss term
	Seed           int64   // Base random seed; step t uses Seed+t
}

// BackupConfig holds S3-compatible artifact backup configuration.
// Nil when backups are disabled (no bucket configured).
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Optional custom endpoint (R2, MinIO); empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VOLCAST_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path and ensure it exists
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		PanelPath:   getEnv("VOLCAST_PANEL", "panel.csv"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvAsInt("VOLCAST_PORT", 8011),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		RunSchedule: getEnv("VOLCAST_RUN_SCHEDULE", ""),
		RunOnStart:  getEnvAsBool("VOLCAST_RUN_ON_START", false),
		Simulation: SimulationConfig{
			Horizon:        getEnvAsInt("VOLCAST_HORIZON", 7),
			SequenceLength: getEnvAsInt("VOLCAST_SEQUENCE_LENGTH", 35),
			TrainFraction:  getEnvAsFloat("VOLCAST_TRAIN_FRACTION", 0.8),
			BatchSize:      getEnvAsInt("VOLCAST_BATCH_SIZE", 16),
			MaxEpochs:      getEnvAsInt("VOLCAST_MAX_EPOCHS", 60),
			Patience:       getEnvAsInt("VOLCAST_PATIENCE", 8),
			LearningRate:   getEnvAsFloat("VOLCAST_LEARNING_RATE", 0.001),
			HiddenSize:     getEnvAsInt("VOLCAST_HIDDEN_SIZE", 64),
			Layers:         getEnvAsInt("VOLCAST_LAYERS", 2),
			Dropout:        getEnvAsFloat("VOLCAST_DROPOUT", 0.2),
			MCSamples:      getEnvAsInt("VOLCAST_MC_SAMPLES", 30),
			DirLossWeight:  getEnvAsFloat("VOLCAST_DIR_LOSS_WEIGHT", 0.1),
			Seed:           int64(getEnvAsInt("VOLCAST_SEED", 42)),
		},
		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// Violations here are fatal configuration errors (abort before the loop).
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", s.Horizon)
	}
	if s.SequenceLength <= 0 {
		return fmt.Errorf("sequence length must be positive, got %d", s.SequenceLength)
	}
	if s.TrainFraction <= 0 || s.TrainFraction >= 1 {
		return fmt.Errorf("train fraction must be in (0, 1), got %v", s.TrainFraction)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	if s.MaxEpochs <= 0 {
		return fmt.Errorf("max epochs must be positive, got %d", s.MaxEpochs)
	}
	if s.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %d", s.Patience)
	}
	if s.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", s.LearningRate)
	}
	if s.HiddenSize <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", s.HiddenSize)
	}
	if s.Layers <= 0 {
		return fmt.Errorf("layer count must be positive, got %d", s.Layers)
	}
	if s.Dropout < 0 || s.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %v", s.Dropout)
	}
	if s.MCSamples <= 0 {
		return fmt.Errorf("mc samples must be positive, got %d", s.MCSamples)
	}
	if s.DirLossWeight < 0 {
		return fmt.Errorf("directional loss weight must be non-negative, got %v", s.DirLossWeight)
	}
	return nil
}

// loadBackupConfig loads S3 backup configuration.
// Returns nil (backups disabled) unless a bucket is configured.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("VOLCAST_S3_BUCKET", "")
	if bucket == "" {
		return nil
	}

	return &BackupConfig{
		Bucket:          bucket,
		Endpoint:        getEnv("VOLCAST_S3_ENDPOINT", ""),
		Region:          getEnv("VOLCAST_S3_REGION", "auto"),
		AccessKeyID:     getEnv("VOLCAST_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("VOLCAST_S3_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("VOLCAST_S3_RETENTION_DAYS", 30),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
