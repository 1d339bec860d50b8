package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the shared schema. Staging and master run the
// same DDL; only staging ever accumulates history and outbox rows.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id               BIGSERIAL PRIMARY KEY,
		sku              VARCHAR(100) NOT NULL UNIQUE,
		lidl_product_id  VARCHAR(50),
		name             VARCHAR(500) NOT NULL,
		price            DOUBLE PRECISION NOT NULL,
		original_price   DOUBLE PRECISION,
		currency         VARCHAR(3) NOT NULL DEFAULT 'EUR',
		discount         VARCHAR(100),
		image_url        TEXT,
		product_url      TEXT,
		category         VARCHAR(200),
		brand            VARCHAR(100),
		rating           DOUBLE PRECISION,
		availability     VARCHAR(50) DEFAULT 'unknown',
		first_seen       TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated     TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_scraped     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_sku ON products (sku)`,
	`CREATE INDEX IF NOT EXISTS idx_products_lidl_id ON products (lidl_product_id)`,

	`CREATE TABLE IF NOT EXISTS scraper_runs (
		id               BIGSERIAL PRIMARY KEY,
		start_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
		end_time         TIMESTAMPTZ,
		status           VARCHAR(50) NOT NULL DEFAULT 'running',
		products_found   INTEGER NOT NULL DEFAULT 0,
		products_new     INTEGER NOT NULL DEFAULT 0,
		products_updated INTEGER NOT NULL DEFAULT 0,
		errors           TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS product_history (
		id               BIGSERIAL PRIMARY KEY,
		product_id       BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		sku              VARCHAR(100) NOT NULL,
		lidl_product_id  VARCHAR(50),
		name             VARCHAR(500) NOT NULL,
		price            DOUBLE PRECISION NOT NULL,
		original_price   DOUBLE PRECISION,
		currency         VARCHAR(3) NOT NULL DEFAULT 'EUR',
		discount         VARCHAR(100),
		image_url        TEXT,
		product_url      TEXT,
		category         VARCHAR(200),
		brand            VARCHAR(100),
		rating           DOUBLE PRECISION,
		availability     VARCHAR(50) DEFAULT 'unknown',
		scraped_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		scraper_run_id   BIGINT REFERENCES scraper_runs(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_product_id ON product_history (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_sku ON product_history (sku)`,
	`CREATE INDEX IF NOT EXISTS idx_history_scraped_at ON product_history (scraped_at)`,

	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type VARCHAR(100) NOT NULL,
		aggregate_id   VARCHAR(100) NOT NULL,
		event_type     VARCHAR(100) NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  VARCHAR(200) NOT NULL,
		status         VARCHAR(20) NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_retry ON outbox_event (status, next_retry_at)`,
}

// InitSchema creates all tables and indexes if they do not exist yet.
func InitSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
