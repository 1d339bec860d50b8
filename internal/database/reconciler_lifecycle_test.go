package database

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis4/Crawly/internal/events"
	"github.com/oasis4/Crawly/internal/extractor"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and
// resets all tables. Skips when no test database is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Test database not configured")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, InitSchema(ctx, db))

	for _, table := range []string{"product_history", "outbox_event", "scraper_runs", "products"} {
		_, err := db.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}

	return db
}

func countRows(t *testing.T, db *DB, query string, args ...interface{}) int {
	t.Helper()
	var count int
	require.NoError(t, db.QueryRow(context.Background(), query, args...).Scan(&count))
	return count
}

func TestSaveProductsLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(db)
	reconciler := NewReconciler(db, "", logger)

	runID, err := store.CreateRun(ctx)
	require.NoError(t, err)

	t.Run("ResubmitUpdatesStampsButNotFirstSeen", func(t *testing.T) {
		stats, err := reconciler.SaveProducts(ctx, []extractor.Record{
			rec("LIDL-900001", 9.99),
		}, runID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.New)
		assert.Equal(t, 0, stats.Updated)

		inserted, err := store.GetProductBySKU(ctx, "LIDL-900001")
		require.NoError(t, err)
		require.NotNil(t, inserted)

		stats, err = reconciler.SaveProducts(ctx, []extractor.Record{
			rec("LIDL-900001", 8.49),
		}, runID)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.New)
		assert.Equal(t, 1, stats.Updated)

		updated, err := store.GetProductBySKU(ctx, "LIDL-900001")
		require.NoError(t, err)
		require.NotNil(t, updated)

		assert.Equal(t, inserted.ID, updated.ID, "same sku keeps its row")
		assert.InDelta(t, 8.49, updated.Price, 0.001)
		assert.Equal(t, inserted.FirstSeen, updated.FirstSeen, "first_seen never moves")
		assert.True(t, updated.LastScraped.After(inserted.LastScraped))
		assert.True(t, updated.LastUpdated.After(inserted.LastUpdated))

		// One history row per accepted record, one save each.
		history := countRows(t, db,
			"SELECT COUNT(*) FROM product_history WHERE sku = $1", "LIDL-900001")
		assert.Equal(t, 2, history)
	})

	t.Run("BatchDuplicatesWriteNoHistory", func(t *testing.T) {
		stats, err := reconciler.SaveProducts(ctx, []extractor.Record{
			rec("LIDL-900002", 4.99),
			rec("LIDL-900002", 3.99),
			rec("", 1.99),
		}, runID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.New)
		assert.Equal(t, 1, stats.Duplicates)
		assert.Equal(t, 1, stats.Skipped)

		product, err := store.GetProductBySKU(ctx, "LIDL-900002")
		require.NoError(t, err)
		require.NotNil(t, product)
		assert.InDelta(t, 4.99, product.Price, 0.001, "first occurrence wins")

		history := countRows(t, db,
			"SELECT COUNT(*) FROM product_history WHERE sku = $1", "LIDL-900002")
		assert.Equal(t, 1, history, "skipped records produce no history")
	})

	t.Run("HistoryTaggedWithRun", func(t *testing.T) {
		history := countRows(t, db,
			"SELECT COUNT(*) FROM product_history WHERE scraper_run_id = $1", runID)
		assert.Equal(t, 3, history)
	})

	t.Run("OutboxEventsEnqueued", func(t *testing.T) {
		discovered := countRows(t, db,
			"SELECT COUNT(*) FROM outbox_event WHERE event_type = $1", events.TypeProductDiscovered)
		assert.Equal(t, 2, discovered)

		changed := countRows(t, db,
			"SELECT COUNT(*) FROM outbox_event WHERE event_type = $1 AND aggregate_id = $2",
			events.TypePriceChanged, "LIDL-900001")
		assert.Equal(t, 1, changed)
	})
}
