package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Horizon:        7,
			SequenceLength: 35,
			TrainFraction:  0.8,
			BatchSize:      16,
			MaxEpochs:      60,
			Patience:       8,
			LearningRate:   0.001,
			HiddenSize:     64,
			Layers:         2,
			Dropout:        0.2,
			MCSamples:      30,
			DirLossWeight:  0.1,
			Seed:           42,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"zero horizon", func(s *SimulationConfig) { s.Horizon = 0 }},
		{"negative sequence length", func(s *SimulationConfig) { s.SequenceLength = -1 }},
		{"train fraction zero", func(s *SimulationConfig) { s.TrainFraction = 0 }},
		{"train fraction one", func(s *SimulationConfig) { s.TrainFraction = 1 }},
		{"zero batch size", func(s *SimulationConfig) { s.BatchSize = 0 }},
		{"zero epochs", func(s *SimulationConfig) { s.MaxEpochs = 0 }},
		{"zero patience", func(s *SimulationConfig) { s.Patience = 0 }},
		{"zero learning rate", func(s *SimulationConfig) { s.LearningRate = 0 }},
		{"zero hidden size", func(s *SimulationConfig) { s.HiddenSize = 0 }},
		{"zero layers", func(s *SimulationConfig) { s.Layers = 0 }},
		{"dropout of one", func(s *SimulationConfig) { s.Dropout = 1 }},
		{"negative dropout", func(s *SimulationConfig) { s.Dropout = -0.1 }},
		{"zero mc samples", func(s *SimulationConfig) { s.MCSamples = 0 }},
		{"negative directional weight", func(s *SimulationConfig) { s.DirLossWeight = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Simulation)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VOLCAST_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Simulation.Horizon)
	assert.Equal(t, 35, cfg.Simulation.SequenceLength)
	assert.InDelta(t, 0.8, cfg.Simulation.TrainFraction, 1e-12)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.False(t, cfg.RunOnStart)
	assert.Nil(t, cfg.Backup)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOLCAST_DATA_DIR", t.TempDir())
	t.Setenv("VOLCAST_HORIZON", "14")
	t.Setenv("VOLCAST_MC_SAMPLES", "50")
	t.Setenv("VOLCAST_RUN_ON_START", "true")
	t.Setenv("VOLCAST_S3_BUCKET", "volcast-artifacts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Simulation.Horizon)
	assert.Equal(t, 50, cfg.Simulation.MCSamples)
	assert.True(t, cfg.RunOnStart)
	require.NotNil(t, cfg.Backup)
	assert.Equal(t, "volcast-artifacts", cfg.Backup.Bucket)
}
