package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oasis4/Crawly/internal/database"
)

// Source reads the full staging snapshot.
type Source interface {
	AllProducts(ctx context.Context) ([]database.Product, error)
	AllRuns(ctx context.Context) ([]database.ScraperRun, error)
}

// Target atomically replaces the master contents.
type Target interface {
	ReplaceAll(ctx context.Context, products []database.Product, runs []database.ScraperRun) error
}

// Stats summarizes one sync.
type Stats struct {
	SyncedProducts  int
	SkippedProducts int
	SyncedRuns      int
}

// Syncer promotes staging into master: clean products and run metadata
// are copied, history never is. Master ends up fully replaced or
// untouched. Re-running against unchanged staging input is idempotent.
type Syncer struct {
	source Source
	target Target
	logger *slog.Logger
}

func NewSyncer(source Source, target Target, logger *slog.Logger) *Syncer {
	return &Syncer{
		source: source,
		target: target,
		logger: logger.With("component", "syncer"),
	}
}

// Sync copies the filtered staging snapshot into master.
func (s *Syncer) Sync(ctx context.Context) (*Stats, error) {
	products, err := s.source.AllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging products: %w", err)
	}

	runs, err := s.source.AllRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging runs: %w", err)
	}

	clean, skipped := filterProducts(products, s.logger)

	if err := s.target.ReplaceAll(ctx, clean, runs); err != nil {
		return nil, fmt.Errorf("failed to replace master contents: %w", err)
	}

	stats := &Stats{
		SyncedProducts:  len(clean),
		SkippedProducts: skipped,
		SyncedRuns:      len(runs),
	}

	s.logger.Info("sync finished",
		"products", stats.SyncedProducts,
		"skipped", stats.SkippedProducts,
		"runs", stats.SyncedRuns)

	return stats, nil
}

// filterProducts drops rows a clean master must not carry: missing SKU,
// non-positive price, and any SKU after its first occurrence.
func filterProducts(products []database.Product, logger *slog.Logger) (clean []database.Product, skipped int) {
	seen := make(map[string]struct{}, len(products))
	clean = make([]database.Product, 0, len(products))

	for i := range products {
		p := &products[i]
		switch {
		case p.SKU == "":
			logger.Warn("skipping product without sku", "id", p.ID)
			skipped++
		case p.Price <= 0:
			logger.Warn("skipping product with invalid price", "sku", p.SKU, "price", p.Price)
			skipped++
		default:
			if _, dup := seen[p.SKU]; dup {
				logger.Warn("skipping duplicate sku", "sku", p.SKU)
				skipped++
				continue
			}
			seen[p.SKU] = struct{}{}
			clean = append(clean, *p)
		}
	}

	return clean, skipped
}
