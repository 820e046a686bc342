package reprice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
	"github.com/noah-isme/toko-pricing/internal/queue"
)

// Handler exposes order pricing over HTTP.
type Handler struct {
	Svc   *Service
	Queue *queue.Enqueuer
	// Idem guards write endpoints when set.
	Idem *common.Idem
	// CodeAttempts, when set, wraps code submission to slow down guessing.
	CodeAttempts func(http.Handler) http.Handler
}

// Routes mounts the pricing endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/products/{productID}/price", h.SimulateProduct)
	r.Route("/orders/{orderID}", func(o chi.Router) {
		o.Get("/pricing", h.OrderPricing)
		o.Get("/ledger", h.Ledger)
		o.Group(func(g chi.Router) {
			if h.Idem != nil {
				g.Use(h.Idem.Middleware)
			}
			g.Put("/", h.PutOrder)
			g.Post("/recalculate", h.Recalculate)
			g.Post("/recalculations", h.EnqueueRecalculation)
			if h.CodeAttempts != nil {
				g.With(h.CodeAttempts).Post("/discounts", h.ApplyCode)
			} else {
				g.Post("/discounts", h.ApplyCode)
			}
			g.Delete("/discounts/{discountID}", h.RemoveDiscount)
		})
	})
}

type simulateRequest struct {
	Quantity  int                     `json:"quantity"`
	Currency  string                  `json:"currency"`
	Country   string                  `json:"country"`
	Discounts []pricing.OrderDiscount `json:"discounts"`
}

func (h *Handler) SimulateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req simulateRequest
	if !decode(w, r, &req, true) {
		return
	}
	productID := chi.URLParam(r, "productID")
	sheet, err := h.Svc.SimulateProduct(r.Context(), product.Input{
		ProductID: productID,
		Quantity:  req.Quantity,
		Currency:  strings.ToUpper(req.Currency),
		Country:   strings.ToUpper(req.Country),
		Discounts: req.Discounts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ProductPricingOf(productID, sheet)})
}

func (h *Handler) PutOrder(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in order.Order
	if !decode(w, r, &in, false) {
		return
	}
	in.ID = chi.URLParam(r, "orderID")
	in.Currency = strings.ToUpper(in.Currency)
	in.Country = strings.ToUpper(in.Country)
	o, err := h.Svc.PutOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o, "pricing": PricingOf(o)})
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	o, err := h.Svc.RecalculateOrder(r.Context(), chi.URLParam(r, "orderID"), TriggerAPI)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": PricingOf(o)})
}

// EnqueueRecalculation schedules an asynchronous recalculation. Requests for
// an order that already has one pending collapse into it.
func (h *Handler) EnqueueRecalculation(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if h.Queue == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "recalculation queue not configured", nil)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if _, err := h.Svc.Store.Order(r.Context(), orderID); err != nil {
		h.writeError(w, err)
		return
	}
	task, err := NewRecalculateTask(orderID, TriggerQueue, "")
	if err != nil {
		h.writeError(w, invalid(err))
		return
	}
	if err := h.Queue.Enqueue(r.Context(), task); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"orderId": orderID,
		"kind":    task.Kind,
		"status":  "queued",
	}})
}

func (h *Handler) OrderPricing(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.Svc.OrderPricing(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

type applyCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req applyCodeRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, invalid(err))
		return
	}
	o, applied, err := h.Svc.ApplyCode(r.Context(), chi.URLParam(r, "orderID"), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": applied, "pricing": PricingOf(o)})
}

func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	o, err := h.Svc.RemoveDiscount(r.Context(), chi.URLParam(r, "orderID"), chi.URLParam(r, "discountID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": PricingOf(o)})
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	entries, err := h.Svc.Ledger(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	common.WriteError(w, AsAppError(err))
}

// decode reads a JSON body into dst. An empty body is accepted when optional.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
	return false
}
