package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis4/Crawly/internal/database"
)

type fakeSource struct {
	products []database.Product
	runs     []database.ScraperRun
	err      error
}

func (f *fakeSource) AllProducts(context.Context) ([]database.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeSource) AllRuns(context.Context) ([]database.ScraperRun, error) {
	return f.runs, nil
}

// fakeTarget records the last snapshot it was asked to hold.
type fakeTarget struct {
	products []database.Product
	runs     []database.ScraperRun
	replaces int
	err      error
}

func (f *fakeTarget) ReplaceAll(_ context.Context, products []database.Product, runs []database.ScraperRun) error {
	if f.err != nil {
		return f.err
	}
	f.products = products
	f.runs = runs
	f.replaces++
	return nil
}

func product(id int64, sku string, price float64) database.Product {
	return database.Product{ID: id, SKU: sku, Name: "Produkt " + sku, Price: price, Currency: "EUR"}
}

func newTestSyncer(source Source, target Target) *Syncer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSyncer(source, target, logger)
}

func TestSyncCopiesCleanProductsAndRuns(t *testing.T) {
	now := time.Now()
	source := &fakeSource{
		products: []database.Product{
			product(1, "LIDL-1", 9.99),
			product(2, "LIDL-2", 4.49),
		},
		runs: []database.ScraperRun{
			{ID: 1, StartTime: now, Status: database.RunStatusCompleted},
		},
	}
	target := &fakeTarget{}

	stats, err := newTestSyncer(source, target).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SyncedProducts)
	assert.Equal(t, 0, stats.SkippedProducts)
	assert.Equal(t, 1, stats.SyncedRuns)
	assert.Len(t, target.products, 2)
	assert.Len(t, target.runs, 1)
}

func TestSyncFiltersDirtyProducts(t *testing.T) {
	source := &fakeSource{
		products: []database.Product{
			product(1, "LIDL-1", 9.99),
			product(2, "", 4.49),       // no sku
			product(3, "LIDL-3", 0),    // zero price
			product(4, "LIDL-4", -2),   // negative price
			product(5, "LIDL-1", 1.99), // duplicate sku, first wins
		},
	}
	target := &fakeTarget{}

	stats, err := newTestSyncer(source, target).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SyncedProducts)
	assert.Equal(t, 4, stats.SkippedProducts)
	require.Len(t, target.products, 1)
	assert.Equal(t, "LIDL-1", target.products[0].SKU)
	assert.InDelta(t, 9.99, target.products[0].Price, 0.001)
}

func TestSyncIsIdempotent(t *testing.T) {
	source := &fakeSource{
		products: []database.Product{product(1, "LIDL-1", 9.99)},
	}
	target := &fakeTarget{}
	syncer := newTestSyncer(source, target)

	first, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	second, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, target.replaces)
	assert.Len(t, target.products, 1)
}

func TestSyncPropagatesSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("staging unreachable")}
	target := &fakeTarget{}

	_, err := newTestSyncer(source, target).Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging unreachable")
	assert.Equal(t, 0, target.replaces)
}

func TestSyncPropagatesTargetError(t *testing.T) {
	source := &fakeSource{products: []database.Product{product(1, "LIDL-1", 9.99)}}
	target := &fakeTarget{err: errors.New("master unreachable")}

	_, err := newTestSyncer(source, target).Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master unreachable")
}
