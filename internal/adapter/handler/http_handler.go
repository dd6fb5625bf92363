package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/core/service"
	"github.com/rl1809/inventory-service/internal/metrics"
)

type HTTPHandler struct {
	inventory *service.InventoryService
	logger    *zap.Logger
}

type InventoryHTTPRequest struct {
	ProductID *int64 `json:"productId"`
	Quantity  *int   `json:"quantity"`
	MinStock  *int   `json:"minStock"`
}

type PurchaseHTTPRequest struct {
	RequestID string `json:"request_id"`
	Quantity  int    `json:"quantity"`
}

type stockCheck struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	Available bool  `json:"available"`
}

func NewHTTPHandler(inventory *service.InventoryService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{inventory: inventory, logger: logger}
}

// Routes builds the router. apiKey gates everything but /health and /metrics.
func (h *HTTPHandler) Routes(apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.logger))
	r.Use(APIKey(apiKey, h.logger))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/inventory", func(r chi.Router) {
		r.Post("/", h.CreateOrUpdate)
		r.Get("/low-stock", h.ListLowStock)
		r.Get("/out-of-stock", h.ListOutOfStock)
		r.Route("/product/{productId}", func(r chi.Router) {
			r.Get("/", h.GetByProduct)
			r.Delete("/", h.Delete)
			r.Patch("/quantity", h.UpdateQuantity)
			r.Post("/purchase", h.Purchase)
			r.Get("/check-stock", h.CheckStock)
		})
	})
	return r
}

func (h *HTTPHandler) CreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	var req InventoryHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "invalid request body")
		return
	}
	if req.ProductID == nil || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "productId and quantity are required")
		return
	}

	view, err := h.inventory.CreateOrUpdate(r.Context(), *req.ProductID, *req.Quantity, req.MinStock)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, document{Data: inventoryResource(view)})
}

func (h *HTTPHandler) GetByProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.inventory.GetByProduct(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, document{Data: inventoryResource(view)})
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	quantity, ok := quantityParam(w, r)
	if !ok {
		return
	}
	view, err := h.inventory.UpdateQuantity(r.Context(), productID, quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, document{Data: inventoryResource(view)})
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req PurchaseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "invalid request body")
		return
	}

	view, err := h.inventory.Purchase(r.Context(), productID, req.Quantity, service.WithRequestID(req.RequestID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, document{Data: inventoryResource(view)})
}

func (h *HTTPHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	views, err := h.inventory.ListLowStock(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryCollection(views))
}

func (h *HTTPHandler) ListOutOfStock(w http.ResponseWriter, r *http.Request) {
	views, err := h.inventory.ListOutOfStock(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryCollection(views))
}

func (h *HTTPHandler) CheckStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	quantity, ok := quantityParam(w, r)
	if !ok {
		return
	}
	available, err := h.inventory.HasStock(r.Context(), productID, quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, document{Data: resource{
		Type:       "stock-check",
		ID:         strconv.FormatInt(productID, 10),
		Attributes: stockCheck{ProductID: productID, Quantity: quantity, Available: available},
	}})
}

func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	if err := h.inventory.Delete(r.Context(), productID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, title := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		detail = ""
	}

	e := apiError{Status: strconv.Itoa(status), Code: code, Title: title, Detail: detail}
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		e.Meta = map[string]any{
			"productId": insufficient.ProductID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		}
	}
	writeJSON(w, status, errorDocument{Errors: []apiError{e}})
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "productId must be an integer")
		return 0, false
	}
	return id, true
}

func quantityParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("quantity")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "quantity query parameter is required")
		return 0, false
	}
	q, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "quantity must be an integer")
		return 0, false
	}
	return q, true
}
