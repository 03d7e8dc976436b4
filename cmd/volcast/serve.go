package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/volcast/internal/config"
	"github.com/aristath/volcast/internal/database"
	"github.com/aristath/volcast/internal/reliability"
	"github.com/aristath/volcast/internal/results"
	"github.com/aristath/volcast/internal/scheduler"
	"github.com/aristath/volcast/internal/server"
)

// serve starts the HTTP API over stored runs, a websocket progress stream,
// and optionally a cron schedule of re-runs. Only one simulation runs at a
// time; concurrent triggers are rejected.
func serve(cfg *config.Config, log zerolog.Logger, db *database.DB, store *results.Store) error {
	hub := server.NewProgressHub(log)

	var runMu sync.Mutex
	trigger := func(ctx context.Context) (string, error) {
		if !runMu.TryLock() {
			return "", fmt.Errorf("a run is already in progress")
		}
		go func() {
			defer runMu.Unlock()
			if _, err := executeRun(ctx, cfg, log, store, hub); err != nil {
				log.Error().Err(err).Msg("Triggered run failed")
			}
		}()
		return "started", nil
	}

	var backups *reliability.BackupService
	if cfg.Backup != nil {
		client, err := reliability.NewS3Client(context.Background(), cfg.Backup.Bucket, cfg.Backup.Endpoint,
			cfg.Backup.Region, cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey, log)
		if err != nil {
			return fmt.Errorf("failed to build backup client: %w", err)
		}
		backups = reliability.NewBackupService(client, cfg.Backup.RetentionDays, log)
	}

	srv := server.New(server.Config{
		Log:      log,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		DB:       db,
		Store:    store,
		Progress: hub,
		Trigger:  trigger,
		Backups:  backups,
	})

	rerun := scheduler.JobFunc{
		JobName: "walkforward_rerun",
		Fn: func() error {
			_, err := trigger(context.Background())
			return err
		},
	}

	sched := scheduler.New(log)
	if cfg.RunSchedule != "" {
		if err := sched.AddJob(cfg.RunSchedule, rerun); err != nil {
			return fmt.Errorf("invalid run schedule %q: %w", cfg.RunSchedule, err)
		}
	}
	if err := sched.AddJob("@daily", scheduler.JobFunc{
		JobName: "wal_checkpoint",
		Fn:      func() error { return db.WALCheckpoint("") },
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.RunOnStart {
		// The trigger returns as soon as the run goroutine is launched
		if err := sched.RunNow(rerun); err != nil {
			log.Error().Err(err).Msg("Startup run failed to launch")
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
