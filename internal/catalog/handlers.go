package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// Handler exposes the read-only catalog endpoints.
type Handler struct {
	catalog *Catalog
}

// NewHandler constructs a Handler.
func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/catalog/products", h.Products)
	r.Get("/catalog/products/{productID}", h.Product)
	r.Get("/catalog/delivery-providers", h.DeliveryProviders)
	r.Get("/catalog/payment-providers", h.PaymentProviders)
}

// Products handles GET /catalog/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.catalog.Products()})
}

// Product handles GET /catalog/products/{productID}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.catalog.Product(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// DeliveryProviders handles GET /catalog/delivery-providers.
func (h *Handler) DeliveryProviders(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.catalog.DeliveryProviders()})
}

// PaymentProviders handles GET /catalog/payment-providers.
func (h *Handler) PaymentProviders(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.catalog.PaymentProviders()})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return false
	}
	return true
}
