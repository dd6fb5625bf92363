package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

const (
	contentTypeJSONAPI = "application/vnd.api+json"
	resourceInventory  = "inventory"
)

type resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
}

type document struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type apiError struct {
	Status string         `json:"status"`
	Code   string         `json:"code"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type errorDocument struct {
	Errors []apiError `json:"errors"`
}

func inventoryResource(v domain.View) resource {
	return resource{
		Type:       resourceInventory,
		ID:         strconv.FormatInt(v.ID, 10),
		Attributes: v,
	}
}

func inventoryCollection(views []domain.View) document {
	data := make([]resource, 0, len(views))
	for _, v := range views {
		data = append(data, inventoryResource(v))
	}
	return document{Data: data, Meta: map[string]any{"total": len(views)}}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSONAPI)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, title, detail string) {
	writeJSON(w, status, errorDocument{Errors: []apiError{{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
		Detail: detail,
	}}})
}

// statusFor maps an engine error to its HTTP status and stable error code.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "INVENTORY_NOT_FOUND", "Inventory not found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest, "INSUFFICIENT_STOCK", "Insufficient stock"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "PRODUCT_SERVICE_ERROR", "Product service unavailable"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "DUPLICATE_REQUEST", "Duplicate request"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}
