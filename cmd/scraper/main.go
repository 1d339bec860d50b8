package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oasis4/Crawly/internal/browser"
	"github.com/oasis4/Crawly/internal/config"
	"github.com/oasis4/Crawly/internal/database"
	"github.com/oasis4/Crawly/internal/extractor"
	"github.com/oasis4/Crawly/internal/logging"
	"github.com/oasis4/Crawly/internal/scraper"
)

// stagingStore combines the run recorder with batch reconciliation,
// which is everything the orchestrator needs from the staging database.
type stagingStore struct {
	*database.Store
	*database.Reconciler
}

func main() {
	initDB := flag.Bool("init-db", false, "create schema before scraping")
	maxPages := flag.Int("max-pages", 0, "override page cap (0 means unlimited)")
	headless := flag.Bool("headless", true, "run the browser headless")
	interval := flag.Duration("interval", 0, "run on a schedule instead of once")
	flag.Parse()

	// Missing .env is fine, plain environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// Flags only override the environment when explicitly passed.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-pages":
			cfg.Scraper.MaxPages = *maxPages
		case "headless":
			cfg.Browser.Headless = *headless
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		URL:         cfg.Database.StagingURL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	})
	if err != nil {
		logger.Error("failed to connect to staging database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *initDB {
		if err := database.InitSchema(ctx, db); err != nil {
			logger.Error("failed to initialize schema", "error", err)
			os.Exit(1)
		}
		logger.Info("schema initialized")
	}

	sessions := func() (scraper.Session, error) {
		return browser.Open(&browser.Options{
			Headless:        cfg.Browser.Headless,
			UserAgent:       cfg.Browser.UserAgent,
			ViewportWidth:   cfg.Browser.ViewportWidth,
			ViewportHeight:  cfg.Browser.ViewportHeight,
			AcceptLanguage:  cfg.Browser.AcceptLanguage,
			TimezoneID:      cfg.Browser.TimezoneID,
			Locale:          cfg.Browser.Locale,
			ProxyServer:     cfg.Browser.ProxyServer,
			WaitTimeout:     cfg.Scraper.WaitTimeout,
			PageLoadTimeout: cfg.Scraper.PageLoadTimeout,
			ScrollPause:     cfg.Scraper.ScrollPause,
			MinDelay:        cfg.Scraper.MinDelay,
			MaxDelay:        cfg.Scraper.MaxDelay,
		})
	}

	store := &stagingStore{
		Store:      database.NewStore(db),
		Reconciler: database.NewReconciler(db, cfg.Redis.Stream, logger),
	}
	ex := extractor.New(cfg.Scraper, logger)
	orchestrator := scraper.NewOrchestrator(cfg.Scraper, sessions, ex, store, logger)

	if *interval > 0 {
		scheduler := scraper.NewScheduler(orchestrator, *interval, logger)
		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler failed", "error", err)
			os.Exit(1)
		}
		return
	}

	start := time.Now()
	result, err := orchestrator.Scrape(ctx)
	if err != nil {
		logger.Error("scrape failed", "error", err)
		os.Exit(1)
	}

	logger.Info("scrape finished",
		"run_id", result.RunID,
		"pages", result.Pages,
		"found", result.Found,
		"new", result.New,
		"updated", result.Updated,
		"duration", time.Since(start))
}
