package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oasis4/Crawly/internal/events"
	"github.com/oasis4/Crawly/internal/extractor"
)

// Reconciler merges one batch of extracted records into the staging store:
// upsert by SKU, append a history snapshot per record, and enqueue outbox
// events for discoveries and price changes, all in one transaction.
type Reconciler struct {
	db     *DB
	outbox *OutboxRepository
	stream string
	logger *slog.Logger
}

// NewReconciler builds a reconciler whose outbox events target stream.
// An empty stream falls back to DefaultPriceStream.
func NewReconciler(db *DB, stream string, logger *slog.Logger) *Reconciler {
	if stream == "" {
		stream = DefaultPriceStream
	}
	return &Reconciler{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
		logger: logger.With("component", "reconciler"),
	}
}

// SaveStats aggregates the outcome of one batch.
type SaveStats struct {
	New        int
	Updated    int
	Skipped    int
	Duplicates int
}

func (s SaveStats) Add(other SaveStats) SaveStats {
	return SaveStats{
		New:        s.New + other.New,
		Updated:    s.Updated + other.Updated,
		Skipped:    s.Skipped + other.Skipped,
		Duplicates: s.Duplicates + other.Duplicates,
	}
}

// DedupRecords drops records without a SKU and keeps only the first
// occurrence of every SKU within the batch. Later occurrences of a SKU
// count as duplicates, not skips.
func DedupRecords(records []extractor.Record) (kept []extractor.Record, skipped, duplicates int) {
	seen := make(map[string]struct{}, len(records))
	kept = make([]extractor.Record, 0, len(records))

	for i := range records {
		sku := records[i].SKU
		if sku == "" {
			skipped++
			continue
		}
		if _, dup := seen[sku]; dup {
			duplicates++
			continue
		}
		seen[sku] = struct{}{}
		kept = append(kept, records[i])
	}

	return kept, skipped, duplicates
}

// SaveProducts persists one batch. Either every record in the batch lands
// (products, history and outbox rows together) or none of them do.
func (r *Reconciler) SaveProducts(ctx context.Context, records []extractor.Record, runID int64) (SaveStats, error) {
	kept, skipped, duplicates := DedupRecords(records)
	stats := SaveStats{Skipped: skipped, Duplicates: duplicates}

	if skipped > 0 {
		r.logger.Warn("skipping records without sku", "count", skipped)
	}
	if duplicates > 0 {
		r.logger.Debug("deduplicated records within batch", "count", duplicates)
	}

	if len(kept) == 0 {
		return stats, nil
	}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for i := range kept {
			rec := &kept[i]

			existing, err := getProductBySKUTx(ctx, tx, rec.SKU)
			if err != nil {
				return err
			}

			var productID int64
			if existing == nil {
				productID, err = r.insertProduct(ctx, tx, rec)
				if err != nil {
					return err
				}
				stats.New++

				if err := r.enqueueDiscovered(ctx, tx, rec); err != nil {
					return err
				}
			} else {
				productID = existing.ID
				if err := r.updateProduct(ctx, tx, existing.ID, rec); err != nil {
					return err
				}
				stats.Updated++

				if existing.Price != rec.Price {
					if err := r.enqueuePriceChanged(ctx, tx, existing, rec); err != nil {
						return err
					}
				}
			}

			if err := r.insertHistory(ctx, tx, productID, rec, runID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SaveStats{Skipped: skipped, Duplicates: duplicates}, err
	}

	r.logger.Info("batch reconciled",
		"new", stats.New, "updated", stats.Updated,
		"skipped", stats.Skipped, "duplicates", stats.Duplicates)
	return stats, nil
}

func getProductBySKUTx(ctx context.Context, tx pgx.Tx, sku string) (*Product, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, sku, price FROM products WHERE sku = $1`, sku)

	p := &Product{}
	err := row.Scan(&p.ID, &p.SKU, &p.Price)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %s: %w", sku, err)
	}
	return p, nil
}

func (r *Reconciler) insertProduct(ctx context.Context, tx pgx.Tx, rec *extractor.Record) (int64, error) {
	now := time.Now().UTC()

	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO products (sku, lidl_product_id, name, price, original_price,
		        currency, discount, image_url, product_url, category, brand,
		        rating, availability, first_seen, last_updated, last_scraped)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14,$14)
		 RETURNING id`,
		rec.SKU, rec.LidlProductID, rec.Name, rec.Price, rec.OriginalPrice,
		rec.Currency, rec.Discount, rec.ImageURL, rec.ProductURL, rec.Category,
		rec.Brand, rec.Rating, rec.Availability, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product %s: %w", rec.SKU, err)
	}
	return id, nil
}

func (r *Reconciler) updateProduct(ctx context.Context, tx pgx.Tx, id int64, rec *extractor.Record) error {
	now := time.Now().UTC()

	_, err := tx.Exec(ctx,
		`UPDATE products
		 SET lidl_product_id = $2, name = $3, price = $4, original_price = $5,
		     currency = $6, discount = $7, image_url = $8, product_url = $9,
		     category = $10, brand = $11, rating = $12, availability = $13,
		     last_updated = $14, last_scraped = $14
		 WHERE id = $1`,
		id, rec.LidlProductID, rec.Name, rec.Price, rec.OriginalPrice,
		rec.Currency, rec.Discount, rec.ImageURL, rec.ProductURL,
		rec.Category, rec.Brand, rec.Rating, rec.Availability, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", rec.SKU, err)
	}
	return nil
}

func (r *Reconciler) insertHistory(ctx context.Context, tx pgx.Tx, productID int64, rec *extractor.Record, runID int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO product_history (product_id, sku, lidl_product_id, name, price,
		        original_price, currency, discount, image_url, product_url,
		        category, brand, rating, availability, scraped_at, scraper_run_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		productID, rec.SKU, rec.LidlProductID, rec.Name, rec.Price,
		rec.OriginalPrice, rec.Currency, rec.Discount, rec.ImageURL, rec.ProductURL,
		rec.Category, rec.Brand, rec.Rating, rec.Availability,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history for %s: %w", rec.SKU, err)
	}
	return nil
}

func (r *Reconciler) enqueueDiscovered(ctx context.Context, tx pgx.Tx, rec *extractor.Record) error {
	payload, err := json.Marshal(events.ProductDiscovered{
		SKU:          rec.SKU,
		Name:         rec.Name,
		Price:        rec.Price,
		Currency:     rec.Currency,
		ProductURL:   rec.ProductURL,
		DiscoveredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal discovery event: %w", err)
	}

	return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
		AggregateType: events.AggregateProduct,
		AggregateID:   rec.SKU,
		EventType:     events.TypeProductDiscovered,
		Payload:       payload,
		TargetStream:  r.stream,
	})
}

func (r *Reconciler) enqueuePriceChanged(ctx context.Context, tx pgx.Tx, existing *Product, rec *extractor.Record) error {
	payload, err := json.Marshal(events.PriceChanged{
		SKU:       rec.SKU,
		Name:      rec.Name,
		OldPrice:  existing.Price,
		NewPrice:  rec.Price,
		Currency:  rec.Currency,
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal price event: %w", err)
	}

	return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
		AggregateType: events.AggregateProduct,
		AggregateID:   rec.SKU,
		EventType:     events.TypePriceChanged,
		Payload:       payload,
		TargetStream:  r.stream,
	})
}
