package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oasis4/Crawly/internal/config"
	"github.com/oasis4/Crawly/internal/database"
	"github.com/oasis4/Crawly/internal/logging"
	"github.com/oasis4/Crawly/internal/sync"
)

func main() {
	initDB := flag.Bool("init-db", false, "create the master schema before syncing")
	validateOnly := flag.Bool("validate-only", false, "run validation without syncing")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	poolCfg := database.Config{
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	}

	stagingCfg := poolCfg
	stagingCfg.URL = cfg.Database.StagingURL
	stagingDB, err := database.New(ctx, stagingCfg)
	if err != nil {
		logger.Error("failed to connect to staging database", "error", err)
		os.Exit(1)
	}
	defer stagingDB.Close()

	staging := database.NewStore(stagingDB)

	validator := sync.NewValidator(staging, logger)
	report, err := validator.Validate(ctx)
	if err != nil {
		logger.Error("validation failed", "error", err)
		os.Exit(1)
	}
	if !report.Passed() {
		logger.Error("validation found critical issues, refusing to sync",
			"criticals", report.Criticals)
		os.Exit(1)
	}

	if *validateOnly {
		logger.Info("validation passed")
		return
	}

	masterCfg := poolCfg
	masterCfg.URL = cfg.Database.MasterURL
	masterDB, err := database.New(ctx, masterCfg)
	if err != nil {
		logger.Error("failed to connect to master database", "error", err)
		os.Exit(1)
	}
	defer masterDB.Close()

	if *initDB {
		if err := database.InitSchema(ctx, masterDB); err != nil {
			logger.Error("failed to initialize master schema", "error", err)
			os.Exit(1)
		}
		logger.Info("master schema initialized")
	}

	master := database.NewStore(masterDB)

	syncer := sync.NewSyncer(staging, master, logger)
	stats, err := syncer.Sync(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		os.Exit(1)
	}

	logger.Info("sync completed",
		"products", stats.SyncedProducts,
		"skipped", stats.SkippedProducts,
		"runs", stats.SyncedRuns)
}
