package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/volcast/internal/config"
	"github.com/aristath/volcast/internal/dataset"
	"github.com/aristath/volcast/internal/features"
	"github.com/aristath/volcast/internal/panel"
	"github.com/aristath/volcast/internal/reliability"
	"github.com/aristath/volcast/internal/report"
	"github.com/aristath/volcast/internal/results"
	"github.com/aristath/volcast/internal/server"
	"github.com/aristath/volcast/internal/walkforward"
	"github.com/aristath/volcast/pkg/formulas"
)

// runOnce executes one complete walk-forward simulation: load and clean the
// panel, build features and windows, run the loop, persist results, write
// the artifact, and print the summary.
func runOnce(cfg *config.Config, log zerolog.Logger, store *results.Store) error {
	_, err := executeRun(context.Background(), cfg, log, store, nil)
	return err
}

// executeRun is the shared run pipeline, also invoked by the serve-mode
// trigger and the cron job. The progress hub is optional.
func executeRun(ctx context.Context, cfg *config.Config, log zerolog.Logger, store *results.Store, hub *server.ProgressHub) (string, error) {
	sim := cfg.Simulation

	p, err := panel.NewLoader(log).Load(cfg.PanelPath)
	if err != nil {
		return "", err
	}

	set, err := features.NewBuilder(sim.Horizon, log).Build(p)
	if err != nil {
		return "", err
	}

	windows, err := dataset.NewWindower(sim.SequenceLength, log).Slice(set)
	if err != nil {
		return "", err
	}

	// Daily log returns in asset order, aligned to panel dates [1:]
	returns := p.LogReturns()
	returnDates := p.Dates[1:]
	history := make([][]float64, len(returnDates))
	for i := range history {
		row := make([]float64, len(p.Assets))
		for j, asset := range p.Assets {
			row[j] = returns[asset][i]
		}
		history[i] = row
	}

	for _, asset := range p.Assets {
		log.Debug().Str("asset", asset).
			Float64("annualized_vol", formulas.AnnualizedVolatility(returns[asset])).
			Msg("Panel daily-return volatility")
	}

	runID, err := store.CreateRun(sim.Horizon, sim.SequenceLength, sim.Seed, p.Assets)
	if err != nil {
		return "", err
	}

	driver := walkforward.New(sim, log)
	driver.OnStep(func(r results.StepResult) {
		if err := store.AppendStep(runID, r); err != nil {
			log.Error().Err(err).Int("step", r.Step).Msg("Failed to persist step result")
		}
		report.WriteStep(os.Stdout, r)
		if hub != nil {
			hub.PublishStep(runID, r)
		}
	})

	steps, err := driver.Run(ctx, windows, history, returnDates)
	if err != nil {
		return runID, err
	}
	if hub != nil {
		hub.PublishDone(runID)
	}

	summary := report.Summarize(p.Assets, steps)
	summary.Write(os.Stdout)

	artifactPath := filepath.Join(cfg.DataDir, fmt.Sprintf("run-%s.msgpack", runID))
	artifact := &results.Artifact{
		RunID:          runID,
		CreatedAt:      time.Now().UTC(),
		Horizon:        sim.Horizon,
		SequenceLength: sim.SequenceLength,
		Seed:           sim.Seed,
		Assets:         p.Assets,
		Results:        steps,
		ReturnDates:    returnDates,
		ReturnHistory:  history,
	}
	if err := artifact.Save(artifactPath); err != nil {
		return runID, err
	}
	log.Info().Str("path", artifactPath).Msg("Wrote run artifact")

	if cfg.Backup != nil {
		if err := backupArtifact(ctx, cfg, log, artifactPath, runID); err != nil {
			// Backups are best-effort: the run itself already succeeded
			log.Error().Err(err).Msg("Artifact backup failed")
		}
	}

	return runID, nil
}

func backupArtifact(ctx context.Context, cfg *config.Config, log zerolog.Logger, artifactPath, runID string) error {
	client, err := reliability.NewS3Client(ctx, cfg.Backup.Bucket, cfg.Backup.Endpoint, cfg.Backup.Region,
		cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey, log)
	if err != nil {
		return err
	}

	svc := reliability.NewBackupService(client, cfg.Backup.RetentionDays, log)
	if _, err := svc.BackupArtifact(ctx, artifactPath, runID); err != nil {
		return err
	}
	_, err = svc.Rotate(ctx)
	return err
}
