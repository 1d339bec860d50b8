package extractor

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/oasis4/Crawly/internal/config"
)

// gridDataAttr carries the URL-encoded JSON payload Lidl renders into
// each product tile. Its presence selects the structured strategy.
const gridDataAttr = "data-grid-data"

// Extractor turns page markup into validated product records. The primary
// strategy reads the structured JSON payload attribute; when a page has no
// structured tiles at all, the configured field list is run against each
// product-card element instead.
type Extractor struct {
	productCard    string
	paginationNext string
	skuPrefix      string
	fields         []config.FieldConfig
	logger         *slog.Logger
}

func New(cfg config.ScraperConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		productCard:    cfg.ProductCard,
		paginationNext: cfg.PaginationNext,
		skuPrefix:      cfg.SKUPrefix,
		fields:         cfg.Fields,
		logger:         logger.With("component", "extractor"),
	}
}

// ExtractProducts parses markup and returns all valid product records.
// One malformed tile never aborts the page.
func (e *Extractor) ExtractProducts(html string) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	records := e.extractStructured(doc)
	if records == nil {
		e.logger.Debug("no structured tiles found, using field-list fallback")
		records = e.extractFromCards(doc)
	}

	valid := records[:0]
	for i := range records {
		if records[i].Valid() {
			valid = append(valid, records[i])
		} else {
			e.logger.Debug("rejecting invalid record",
				"name", records[i].Name, "price", records[i].Price)
		}
	}

	e.logger.Info("extraction complete", "candidates", len(records), "accepted", len(valid))
	return valid, nil
}

// extractStructured returns nil (not an empty slice) when the page carries
// no structured payload elements, so the caller can fall back.
func (e *Extractor) extractStructured(doc *goquery.Document) []Record {
	selection := doc.Find("[" + gridDataAttr + "]")
	if selection.Length() == 0 {
		return nil
	}

	records := make([]Record, 0, selection.Length())
	selection.Each(func(i int, sel *goquery.Selection) {
		raw, _ := sel.Attr(gridDataAttr)
		rec, err := e.parseGridData(raw)
		if err != nil {
			e.logger.Warn("skipping malformed grid payload", "index", i, "error", err)
			return
		}
		records = append(records, *rec)
	})

	return records
}

func (e *Extractor) parseGridData(raw string) (*Record, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		// Some tiles ship the payload unescaped.
		decoded = raw
	}

	payload, err := decodeGridPayload(decoded)
	if err != nil {
		return nil, err
	}

	name := CleanText(stringValue(payload["name"]))
	if name == "" {
		return nil, fmt.Errorf("grid payload without name")
	}

	rec := &Record{
		Name:         name,
		Price:        e.coercePrice(payload["price"], name),
		Currency:     "EUR",
		Availability: "available",
	}

	if v, ok := payload["originalPrice"]; ok {
		if p := e.coercePrice(v, name); p > 0 {
			rec.OriginalPrice = &p
		}
	} else if v, ok := payload["original_price"]; ok {
		if p := e.coercePrice(v, name); p > 0 {
			rec.OriginalPrice = &p
		}
	}

	if id := stringValue(payload["id"]); id != "" {
		rec.LidlProductID = &id
		rec.SKU = e.skuPrefix + id
	}

	if d := stringValue(payload["discount"]); d != "" {
		rec.Discount = &d
	}
	if img := stringValue(payload["image"]); img != "" {
		rec.ImageURL = &img
	}
	if u := stringValue(payload["url"]); u != "" {
		rec.ProductURL = &u
	}
	if c := stringValue(payload["category"]); c != "" {
		rec.Category = &c
	}
	if b := stringValue(payload["brand"]); b != "" {
		rec.Brand = &b
	}

	if rec.SKU == "" {
		rec.SKU = e.generateSKU(rec)
	}

	return rec, nil
}

// decodeGridPayload accepts both payload shapes seen in the wild: a single
// JSON object or a one-element array wrapping it.
func decodeGridPayload(decoded string) (map[string]any, error) {
	trimmed := strings.TrimSpace(decoded)

	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("failed to decode grid payload array: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("empty grid payload array")
		}
		return list[0], nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode grid payload: %w", err)
	}
	return payload, nil
}

// coercePrice converts a payload price of any JSON type to a float.
// Coercion failure yields 0 and a log line; validation rejects the record
// later instead of aborting the page.
func (e *Extractor) coercePrice(value any, name string) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	case string:
		if p, ok := ParsePrice(v); ok {
			return p
		}
	case nil:
		return 0
	}

	e.logger.Warn("could not coerce price", "product", name, "value", value)
	return 0
}

func (e *Extractor) extractFromCards(doc *goquery.Document) []Record {
	cards := doc.Find(e.productCard)
	e.logger.Debug("found product cards", "count", cards.Length())

	records := make([]Record, 0, cards.Length())
	cards.Each(func(i int, card *goquery.Selection) {
		rec, ok := e.extractCard(card)
		if !ok {
			e.logger.Debug("skipping card", "index", i)
			return
		}
		records = append(records, *rec)
	})

	return records
}

// extractCard runs the configured field list against one card. A missing
// required field aborts the card.
func (e *Extractor) extractCard(card *goquery.Selection) (*Record, bool) {
	rec := &Record{
		Currency:     "EUR",
		Availability: "available",
	}

	for _, field := range e.fields {
		ok := e.extractField(card, field, rec)
		if !ok && field.Required {
			e.logger.Debug("missing required field", "field", field.Name)
			return nil, false
		}
	}

	if rec.SKU == "" {
		rec.SKU = e.generateSKU(rec)
	}

	return rec, true
}

func (e *Extractor) extractField(card *goquery.Selection, field config.FieldConfig, rec *Record) bool {
	target := card.Find(field.Selector).First()
	if target.Length() == 0 {
		return false
	}

	switch field.Type {
	case "price":
		price, ok := ParsePrice(target.Text())
		if !ok {
			return false
		}
		e.assignPrice(rec, field.Name, price)
	case "attribute":
		attr := field.Attribute
		if attr == "" {
			attr = "href"
		}
		value, ok := target.Attr(attr)
		if !ok || value == "" {
			return false
		}
		e.assignText(rec, field.Name, value)
	default:
		text := CleanText(target.Text())
		if text == "" {
			return false
		}
		e.assignText(rec, field.Name, text)
	}

	return true
}

func (e *Extractor) assignPrice(rec *Record, name string, price float64) {
	switch name {
	case "price":
		rec.Price = price
	case "original_price":
		rec.OriginalPrice = &price
	case "rating":
		rec.Rating = &price
	}
}

func (e *Extractor) assignText(rec *Record, name, value string) {
	switch name {
	case "product_name", "name":
		rec.Name = value
	case "sku":
		rec.SKU = value
	case "lidl_product_id":
		rec.LidlProductID = &value
	case "discount":
		rec.Discount = &value
	case "image_url":
		rec.ImageURL = &value
	case "product_url":
		rec.ProductURL = &value
	case "category":
		rec.Category = &value
	case "brand":
		rec.Brand = &value
	case "availability":
		rec.Availability = value
	case "rating":
		if r, ok := ParsePrice(value); ok {
			rec.Rating = &r
		}
	}
}

// generateSKU synthesizes a deterministic SKU from name and price when no
// sku field was configured: prefix plus the first 12 hex characters of an
// MD5 over both. Products sharing name and price collide by construction.
func (e *Extractor) generateSKU(rec *Record) string {
	input := rec.Name + strconv.FormatFloat(rec.Price, 'g', -1, 64)
	sum := md5.Sum([]byte(input))
	return e.skuPrefix + fmt.Sprintf("%x", sum)[:12]
}

// ExtractPaginationInfo reports whether the page still offers the
// load-more expansion control.
func (e *Extractor) ExtractPaginationInfo(html string) PaginationInfo {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("failed to parse page for pagination", "error", err)
		return PaginationInfo{}
	}

	return PaginationInfo{
		HasNext: doc.Find(e.paginationNext).Length() > 0,
	}
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// Site-native ids sometimes arrive as JSON numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
