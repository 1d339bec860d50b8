package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store is the repository over one schema (staging or master). Which role
// a Store plays is decided by the DB handle passed in, never by the Store
// itself.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *DB {
	return s.db
}

const productColumns = `id, sku, lidl_product_id, name, price, original_price, currency,
	discount, image_url, product_url, category, brand, rating, availability,
	first_seen, last_updated, last_scraped`

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(
		&p.ID, &p.SKU, &p.LidlProductID, &p.Name, &p.Price, &p.OriginalPrice,
		&p.Currency, &p.Discount, &p.ImageURL, &p.ProductURL, &p.Category,
		&p.Brand, &p.Rating, &p.Availability,
		&p.FirstSeen, &p.LastUpdated, &p.LastScraped,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// --- run recorder ---

// CreateRun opens a new scraper run with status=running.
func (s *Store) CreateRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO scraper_runs (start_time, status) VALUES ($1, $2) RETURNING id`,
		time.Now().UTC(), RunStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create scraper run: %w", err)
	}
	return id, nil
}

// CompleteRun finalizes a run as completed with its aggregate counts.
func (s *Store) CompleteRun(ctx context.Context, runID int64, found, added, updated int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE scraper_runs
		 SET end_time = $2, status = $3, products_found = $4, products_new = $5, products_updated = $6
		 WHERE id = $1`,
		runID, time.Now().UTC(), RunStatusCompleted, found, added, updated,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scraper run %d: %w", runID, err)
	}
	return nil
}

// FailRun finalizes a run as failed, recording the error text.
func (s *Store) FailRun(ctx context.Context, runID int64, errText string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE scraper_runs SET end_time = $2, status = $3, errors = $4 WHERE id = $1`,
		runID, time.Now().UTC(), RunStatusFailed, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scraper run %d failed: %w", runID, err)
	}
	return nil
}

// --- product lookups ---

// GetProductBySKU returns nil without error when the SKU is unknown.
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by id: %w", err)
	}
	return p, nil
}

// ProductFilter narrows ListProducts. Zero values mean "no filter".
type ProductFilter struct {
	Search      string
	MinPrice    *float64
	MaxPrice    *float64
	HasDiscount *bool
	Skip        int
	Limit       int
}

// ListProducts returns one page of products plus the unpaginated total.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		where += fmt.Sprintf(" AND price >= $%d", len(args))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		where += fmt.Sprintf(" AND price <= $%d", len(args))
	}
	if filter.HasDiscount != nil {
		if *filter.HasDiscount {
			where += " AND discount IS NOT NULL"
		} else {
			where += " AND discount IS NULL"
		}
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Skip)
	query := "SELECT " + productColumns + " FROM products" + where +
		fmt.Sprintf(" ORDER BY last_updated DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// HistoryForProduct returns history rows for one product newer than since,
// most recent first.
func (s *Store) HistoryForProduct(ctx context.Context, productID int64, since time.Time) ([]ProductHistory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, product_id, sku, lidl_product_id, name, price, original_price,
		        currency, discount, image_url, product_url, category, brand, rating,
		        availability, scraped_at, scraper_run_id
		 FROM product_history
		 WHERE product_id = $1 AND scraped_at >= $2
		 ORDER BY scraped_at DESC`,
		productID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query product history: %w", err)
	}
	defer rows.Close()

	var history []ProductHistory
	for rows.Next() {
		h := ProductHistory{}
		err := rows.Scan(
			&h.ID, &h.ProductID, &h.SKU, &h.LidlProductID, &h.Name, &h.Price,
			&h.OriginalPrice, &h.Currency, &h.Discount, &h.ImageURL, &h.ProductURL,
			&h.Category, &h.Brand, &h.Rating, &h.Availability,
			&h.ScrapedAt, &h.ScraperRunID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// --- scraper runs ---

const runColumns = `id, start_time, end_time, status, products_found, products_new, products_updated, errors`

func scanRun(row pgx.Row) (*ScraperRun, error) {
	r := &ScraperRun{}
	err := row.Scan(
		&r.ID, &r.StartTime, &r.EndTime, &r.Status,
		&r.ProductsFound, &r.ProductsNew, &r.ProductsUpdated, &r.Errors,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, skip, limit int) ([]ScraperRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM scraper_runs ORDER BY start_time DESC LIMIT $1 OFFSET $2`,
		limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list scraper runs: %w", err)
	}
	defer rows.Close()

	var runs []ScraperRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraper run: %w", err)
		}
		runs = append(runs, *r)
	}

	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, runID int64) (*ScraperRun, error) {
	row := s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM scraper_runs WHERE id = $1`, runID)

	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scraper run: %w", err)
	}
	return r, nil
}

// --- aggregate statistics ---

type Stats struct {
	TotalProducts        int        `json:"total_products"`
	ProductsWithDiscount int        `json:"products_with_discount"`
	AveragePrice         float64    `json:"average_price"`
	TotalScraperRuns     int        `json:"total_scraper_runs"`
	SuccessfulRuns       int        `json:"successful_runs"`
	LastRunID            *int64     `json:"last_run_id,omitempty"`
	LastRunTime          *time.Time `json:"last_run_time,omitempty"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE discount IS NOT NULL),
		        COALESCE(ROUND(AVG(price)::numeric, 2), 0)
		 FROM products`,
	).Scan(&stats.TotalProducts, &stats.ProductsWithDiscount, &stats.AveragePrice)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product stats: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1) FROM scraper_runs`,
		RunStatusCompleted,
	).Scan(&stats.TotalScraperRuns, &stats.SuccessfulRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to compute run stats: %w", err)
	}

	row := s.db.QueryRow(ctx,
		`SELECT id, start_time FROM scraper_runs ORDER BY start_time DESC LIMIT 1`)
	var lastID int64
	var lastTime time.Time
	switch err := row.Scan(&lastID, &lastTime); {
	case err == nil:
		stats.LastRunID = &lastID
		stats.LastRunTime = &lastTime
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}

	return stats, nil
}

// --- validation support ---

// QualityStats is the read-only integrity census the Validator interprets.
type QualityStats struct {
	TotalProducts   int
	MissingName     int
	MissingPrice    int
	MissingSKU      int
	MissingLidlID   int
	DuplicateSKUs   int
	NegativePrices  int
	OrphanedHistory int
}

// QualityStats computes all integrity counts over the staging schema.
// It never mutates anything.
func (s *Store) QualityStats(ctx context.Context) (*QualityStats, error) {
	qs := &QualityStats{}

	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE name IS NULL OR name = ''),
		        COUNT(*) FILTER (WHERE price IS NULL OR price <= 0),
		        COUNT(*) FILTER (WHERE sku IS NULL OR sku = ''),
		        COUNT(*) FILTER (WHERE lidl_product_id IS NULL OR lidl_product_id = ''),
		        COUNT(*) FILTER (WHERE price < 0)
		 FROM products`,
	).Scan(&qs.TotalProducts, &qs.MissingName, &qs.MissingPrice,
		&qs.MissingSKU, &qs.MissingLidlID, &qs.NegativePrices)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product quality stats: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM (
			SELECT sku FROM products GROUP BY sku HAVING COUNT(id) > 1
		 ) dup`,
	).Scan(&qs.DuplicateSKUs)
	if err != nil {
		return nil, fmt.Errorf("failed to count duplicate skus: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM product_history h
		 WHERE NOT EXISTS (SELECT 1 FROM products p WHERE p.id = h.product_id)`,
	).Scan(&qs.OrphanedHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to count orphaned history: %w", err)
	}

	return qs, nil
}

// --- sync support ---

// AllProducts streams the full product table, ordered by first_seen so
// repeated syncs of unchanged staging input stay deterministic.
func (s *Store) AllProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY first_seen, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

func (s *Store) AllRuns(ctx context.Context) ([]ScraperRun, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM scraper_runs ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load scraper runs: %w", err)
	}
	defer rows.Close()

	var runs []ScraperRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraper run: %w", err)
		}
		runs = append(runs, *r)
	}

	return runs, rows.Err()
}

// ReplaceAll deletes every history, run and product row, then inserts the
// given snapshot, all in one transaction: the store ends up fully replaced
// or untouched, never in between.
func (s *Store) ReplaceAll(ctx context.Context, products []Product, runs []ScraperRun) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"product_history", "scraper_runs", "products"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for i := range products {
			p := &products[i]
			_, err := tx.Exec(ctx,
				`INSERT INTO products (sku, lidl_product_id, name, price, original_price,
				        currency, discount, image_url, product_url, category, brand,
				        rating, availability, first_seen, last_updated, last_scraped)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
				p.SKU, p.LidlProductID, p.Name, p.Price, p.OriginalPrice,
				p.Currency, p.Discount, p.ImageURL, p.ProductURL, p.Category,
				p.Brand, p.Rating, p.Availability,
				p.FirstSeen, p.LastUpdated, p.LastScraped,
			)
			if err != nil {
				return fmt.Errorf("failed to insert product %s: %w", p.SKU, err)
			}
		}

		for i := range runs {
			r := &runs[i]
			_, err := tx.Exec(ctx,
				`INSERT INTO scraper_runs (start_time, end_time, status,
				        products_found, products_new, products_updated, errors)
				 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.StartTime, r.EndTime, r.Status,
				r.ProductsFound, r.ProductsNew, r.ProductsUpdated, r.Errors,
			)
			if err != nil {
				return fmt.Errorf("failed to insert scraper run %d: %w", r.ID, err)
			}
		}

		return nil
	})
}
