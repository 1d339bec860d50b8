package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oasis4/Crawly/internal/database"
)

// Handlers serves read-only product data from the master store.
type Handlers struct {
	store  *database.Store
	logger *slog.Logger
}

func NewHandlers(store *database.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: logger.With("component", "api"),
	}
}

// ProductListResponse wraps one page of products with its pagination
// envelope.
type ProductListResponse struct {
	Products []database.Product `json:"products"`
	Total    int                `json:"total"`
	Skip     int                `json:"skip"`
	Limit    int                `json:"limit"`
}

// ListProducts handles GET /products with pagination and filters.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.ProductFilter{
		Search: q.Get("search"),
		Skip:   parseIntOrDefault(q.Get("skip"), 0),
		Limit:  parseIntOrDefault(q.Get("limit"), 100),
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}

	if raw := q.Get("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "min_price must be a number")
			return
		}
		filter.MinPrice = &v
	}
	if raw := q.Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "max_price must be a number")
			return
		}
		filter.MaxPrice = &v
	}
	if raw := q.Get("has_discount"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "has_discount must be a boolean")
			return
		}
		filter.HasDiscount = &v
	}

	products, total, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []database.Product{}
	}

	h.respondJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Skip:     filter.Skip,
		Limit:    filter.Limit,
	})
}

// GetProduct handles GET /products/{productID}.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "product ID must be an integer")
		return
	}

	product, err := h.store.GetProductByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// GetProductBySKU handles GET /products/sku/{sku}.
func (h *Handlers) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		h.respondError(w, http.StatusBadRequest, "sku is required")
		return
	}

	product, err := h.store.GetProductBySKU(r.Context(), sku)
	if err != nil {
		h.logger.Error("failed to get product by sku", "error", err, "sku", sku)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// GetProductHistory handles GET /products/{productID}/history?days=N.
func (h *Handlers) GetProductHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "product ID must be an integer")
		return
	}

	product, err := h.store.GetProductByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	days := parseIntOrDefault(r.URL.Query().Get("days"), 30)
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	history, err := h.store.HistoryForProduct(r.Context(), id, since)
	if err != nil {
		h.logger.Error("failed to get product history", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get history")
		return
	}
	if history == nil {
		history = []database.ProductHistory{}
	}

	h.respondJSON(w, http.StatusOK, history)
}

// ListRuns handles GET /scraper-runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip := parseIntOrDefault(q.Get("skip"), 0)
	limit := parseIntOrDefault(q.Get("limit"), 50)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	runs, err := h.store.ListRuns(r.Context(), skip, limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list scraper runs")
		return
	}
	if runs == nil {
		runs = []database.ScraperRun{}
	}

	h.respondJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /scraper-runs/{runID}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "run ID must be an integer")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get run", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get scraper run")
		return
	}
	if run == nil {
		h.respondError(w, http.StatusNotFound, "scraper run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// GetStats handles GET /stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseIntOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
