// Package main is the entry point for volcast, a walk-forward volatility
// forecasting and portfolio risk research tool. It runs in two modes:
//
//	volcast run     execute one walk-forward simulation and exit
//	volcast serve   serve stored runs over HTTP, with scheduled re-runs
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/volcast/internal/config"
	"github.com/aristath/volcast/internal/database"
	"github.com/aristath/volcast/internal/results"
	"github.com/aristath/volcast/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	mode := "run"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "results.db"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer db.Close()

	store := results.NewStore(db, log)
	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate results database")
	}

	switch mode {
	case "run":
		if err := runOnce(cfg, log, store); err != nil {
			log.Fatal().Err(err).Msg("Run failed")
		}
	case "serve":
		if err := serve(cfg, log, db, store); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want run or serve)\n", mode)
		os.Exit(2)
	}
}
