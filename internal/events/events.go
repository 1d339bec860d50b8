// Package events defines the payloads published to downstream consumers
// through the transactional outbox.
package events

import "time"

const (
	AggregateProduct = "product"

	TypeProductDiscovered = "PRODUCT_DISCOVERED"
	TypePriceChanged      = "PRICE_CHANGED"
)

// ProductDiscovered is emitted the first time a SKU enters the store.
type ProductDiscovered struct {
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	ProductURL   *string   `json:"product_url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// PriceChanged is emitted whenever an existing product is scraped with a
// price that differs from the stored one.
type PriceChanged struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	Currency  string    `json:"currency"`
	ChangedAt time.Time `json:"changed_at"`
}
