package database

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Product is the current state of one listing, keyed by its unique SKU.
type Product struct {
	ID            int64      `db:"id" json:"id"`
	SKU           string     `db:"sku" json:"sku"`
	LidlProductID *string    `db:"lidl_product_id" json:"lidl_product_id,omitempty"`
	Name          string     `db:"name" json:"name"`
	Price         float64    `db:"price" json:"price"`
	OriginalPrice *float64   `db:"original_price" json:"original_price,omitempty"`
	Currency      string     `db:"currency" json:"currency"`
	Discount      *string    `db:"discount" json:"discount,omitempty"`
	ImageURL      *string    `db:"image_url" json:"image_url,omitempty"`
	ProductURL    *string    `db:"product_url" json:"product_url,omitempty"`
	Category      *string    `db:"category" json:"category,omitempty"`
	Brand         *string    `db:"brand" json:"brand,omitempty"`
	Rating        *float64   `db:"rating" json:"rating,omitempty"`
	Availability  *string    `db:"availability" json:"availability,omitempty"`
	FirstSeen     time.Time  `db:"first_seen" json:"first_seen"`
	LastUpdated   time.Time  `db:"last_updated" json:"last_updated"`
	LastScraped   time.Time  `db:"last_scraped" json:"last_scraped"`
}

// ProductHistory is an append-only snapshot of a product at scrape time,
// tagged with the run that produced it. Rows are never updated or deleted
// except through cascading product deletion.
type ProductHistory struct {
	ID            int64     `db:"id" json:"id"`
	ProductID     int64     `db:"product_id" json:"product_id"`
	SKU           string    `db:"sku" json:"sku"`
	LidlProductID *string   `db:"lidl_product_id" json:"lidl_product_id,omitempty"`
	Name          string    `db:"name" json:"name"`
	Price         float64   `db:"price" json:"price"`
	OriginalPrice *float64  `db:"original_price" json:"original_price,omitempty"`
	Currency      string    `db:"currency" json:"currency"`
	Discount      *string   `db:"discount" json:"discount,omitempty"`
	ImageURL      *string   `db:"image_url" json:"image_url,omitempty"`
	ProductURL    *string   `db:"product_url" json:"product_url,omitempty"`
	Category      *string   `db:"category" json:"category,omitempty"`
	Brand         *string   `db:"brand" json:"brand,omitempty"`
	Rating        *float64  `db:"rating" json:"rating,omitempty"`
	Availability  *string   `db:"availability" json:"availability,omitempty"`
	ScrapedAt     time.Time `db:"scraped_at" json:"scraped_at"`
	ScraperRunID  *int64    `db:"scraper_run_id" json:"scraper_run_id,omitempty"`
}

// ScraperRun brackets one crawl attempt. It receives exactly one terminal
// update (completed or failed), even on partial failure.
type ScraperRun struct {
	ID              int64      `db:"id" json:"id"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	Status          RunStatus  `db:"status" json:"status"`
	ProductsFound   int        `db:"products_found" json:"products_found"`
	ProductsNew     int        `db:"products_new" json:"products_new"`
	ProductsUpdated int        `db:"products_updated" json:"products_updated"`
	Errors          *string    `db:"errors" json:"errors,omitempty"`
}
