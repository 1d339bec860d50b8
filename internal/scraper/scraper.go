package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oasis4/Crawly/internal/config"
	"github.com/oasis4/Crawly/internal/database"
	"github.com/oasis4/Crawly/internal/extractor"
)

// Session is one live browser session. Sessions are single-use: the
// orchestrator opens a fresh one per attempt and closes it on every
// exit path.
type Session interface {
	Navigate(target string) error
	ScrollToBottom() error
	Content() (string, error)
	HasNext(selector string) bool
	Click(selector string) error
	Throttle(ctx context.Context) error
	Close() error
}

// SessionFactory opens a new browser session. Each retry attempt gets
// its own session so a wedged browser cannot poison the next attempt.
type SessionFactory func() (Session, error)

// PageExtractor turns markup into records and pagination state.
type PageExtractor interface {
	ExtractProducts(html string) ([]extractor.Record, error)
	ExtractPaginationInfo(html string) extractor.PaginationInfo
}

// Store is everything the orchestrator needs from persistence: the run
// recorder plus batch reconciliation.
type Store interface {
	CreateRun(ctx context.Context) (int64, error)
	CompleteRun(ctx context.Context, runID int64, found, added, updated int) error
	FailRun(ctx context.Context, runID int64, errText string) error
	SaveProducts(ctx context.Context, records []extractor.Record, runID int64) (database.SaveStats, error)
}

const (
	minRetryBackoff = 4 * time.Second
	maxRetryBackoff = 60 * time.Second
)

// Orchestrator drives the crawl-extract-persist loop. Every attempt is
// bracketed by exactly one scraper run row that ends completed or failed.
type Orchestrator struct {
	cfg       config.ScraperConfig
	sessions  SessionFactory
	extractor PageExtractor
	store     Store
	logger    *slog.Logger
	backoff   func(retries int) time.Duration
}

func NewOrchestrator(cfg config.ScraperConfig, sessions SessionFactory, ex PageExtractor, store Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		extractor: ex,
		store:     store,
		logger:    logger.With("component", "scraper"),
		backoff:   retryBackoff,
	}
}

// Result summarizes one successful scrape.
type Result struct {
	RunID   int64
	Pages   int
	Found   int
	New     int
	Updated int
}

// Scrape runs the full crawl, retrying failed attempts with exponential
// backoff. Each attempt opens its own session and its own run row.
func (o *Orchestrator) Scrape(ctx context.Context) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := o.backoff(attempt - 1)
			o.logger.Warn("retrying scrape",
				"attempt", attempt, "max_retries", o.cfg.MaxRetries, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := o.attempt(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		o.logger.Error("scrape attempt failed", "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("scrape failed after %d attempts: %w", o.cfg.MaxRetries, lastErr)
}

// retryBackoff doubles per attempt, clamped to [4s, 60s].
func retryBackoff(retries int) time.Duration {
	backoff := time.Duration(1<<retries) * time.Second
	if backoff < minRetryBackoff {
		backoff = minRetryBackoff
	}
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}
	return backoff
}

func (o *Orchestrator) attempt(ctx context.Context) (result *Result, err error) {
	runID, err := o.store.CreateRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open scraper run: %w", err)
	}

	// Records extracted but not yet reconciled. On failure this tail is
	// salvaged before the run is marked failed, so already-saved pages are
	// never written twice.
	var pending []extractor.Record
	var stats database.SaveStats
	found := 0
	pages := 0

	defer func() {
		if err == nil {
			return
		}
		if len(pending) > 0 {
			o.logger.Info("salvaging unsaved records", "count", len(pending))
			if salvaged, saveErr := o.store.SaveProducts(ctx, pending, runID); saveErr != nil {
				o.logger.Error("failed to salvage records", "error", saveErr)
			} else {
				stats = stats.Add(salvaged)
			}
		}
		if failErr := o.store.FailRun(ctx, runID, err.Error()); failErr != nil {
			o.logger.Error("failed to mark run failed", "run_id", runID, "error", failErr)
		}
	}()

	session, err := o.sessions()
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			o.logger.Warn("failed to close session", "error", closeErr)
		}
	}()

	if err = session.Navigate(o.cfg.TargetURL); err != nil {
		return nil, err
	}

	for {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		pages++
		o.logger.Info("processing page", "page", pages)

		if err = session.ScrollToBottom(); err != nil {
			return nil, err
		}

		var html string
		if html, err = session.Content(); err != nil {
			return nil, err
		}

		var records []extractor.Record
		if records, err = o.extractor.ExtractProducts(html); err != nil {
			return nil, err
		}
		found += len(records)
		pending = records

		var pageStats database.SaveStats
		if pageStats, err = o.store.SaveProducts(ctx, records, runID); err != nil {
			return nil, fmt.Errorf("failed to save page %d: %w", pages, err)
		}
		stats = stats.Add(pageStats)
		pending = nil

		pagination := o.extractor.ExtractPaginationInfo(html)
		if !pagination.HasNext {
			o.logger.Info("no further pages", "pages", pages)
			break
		}
		if o.cfg.MaxPages > 0 && pages >= o.cfg.MaxPages {
			o.logger.Info("page cap reached", "max_pages", o.cfg.MaxPages)
			break
		}

		if !session.HasNext(o.cfg.PaginationNext) {
			o.logger.Info("load-more control gone", "pages", pages)
			break
		}
		if clickErr := session.Click(o.cfg.PaginationNext); clickErr != nil {
			// A failed expansion click would loop on the same page forever,
			// so treat the crawl as exhausted instead.
			o.logger.Warn("failed to expand listing, stopping", "error", clickErr)
			break
		}

		if err = session.Throttle(ctx); err != nil {
			return nil, err
		}
		if err = session.ScrollToBottom(); err != nil {
			return nil, err
		}
	}

	if err = o.store.CompleteRun(ctx, runID, found, stats.New, stats.Updated); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	o.logger.Info("scrape completed",
		"run_id", runID, "pages", pages, "found", found,
		"new", stats.New, "updated", stats.Updated,
		"skipped", stats.Skipped, "duplicates", stats.Duplicates)

	return &Result{
		RunID:   runID,
		Pages:   pages,
		Found:   found,
		New:     stats.New,
		Updated: stats.Updated,
	}, nil
}
