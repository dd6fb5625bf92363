package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/inventory-service/internal/adapter/storage"
	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/core/service"
)

const testKey = "secret"

type stubProducts struct {
	known     map[int64]bool
	existsErr error
}

func (s *stubProducts) Exists(ctx context.Context, productID int64) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.known[productID], nil
}

func (s *stubProducts) FetchAttributes(ctx context.Context, productID int64) (domain.ProductDescriptor, error) {
	if !s.known[productID] {
		return domain.ProductDescriptor{}, domain.ErrRemoteNotFound
	}
	return domain.ProductDescriptor{ID: productID, Name: "Widget", SKU: "W-1", Category: "tools"}, nil
}

type discard struct{}

func (discard) Publish(context.Context, domain.Event) {}

type testServer struct {
	handler  http.Handler
	ledger   *storage.MemoryAdapter
	products *stubProducts
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ledger, err := storage.NewMemoryAdapter(time.Hour)
	require.NoError(t, err)
	products := &stubProducts{known: map[int64]bool{1: true, 2: true}}
	svc := service.NewInventoryService(ledger, products, discard{}, ledger, domain.DefaultMinStock, zap.NewNop())
	return &testServer{
		handler:  NewHTTPHandler(svc, zap.NewNop()).Routes(testKey),
		ledger:   ledger,
		products: products,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(apiKeyHeader, testKey)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(t *testing.T, productID int64, quantity, minStock int) {
	t.Helper()
	_, err := s.ledger.Upsert(context.Background(), domain.StockRecord{ProductID: productID, Quantity: quantity, MinStock: minStock})
	require.NoError(t, err)
}

type singleDoc struct {
	Data struct {
		Type       string         `json:"type"`
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var doc errorDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	return doc.Errors[0]
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/inventory/low-stock", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

	req = httptest.NewRequest(http.MethodGet, "/inventory/low-stock", nil)
	req.Header.Set(apiKeyHeader, "wrong")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")
}

func TestCreateOrUpdate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/inventory", `{"productId":1,"quantity":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeJSONAPI, rec.Header().Get("Content-Type"))

	var doc singleDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "inventory", doc.Data.Type)
	assert.Equal(t, "1", doc.Data.ID)
	assert.Equal(t, float64(100), doc.Data.Attributes["quantity"])
	assert.Equal(t, float64(5), doc.Data.Attributes["minStock"])
	product := doc.Data.Attributes["product"].(map[string]any)
	assert.Equal(t, "Widget", product["name"])
}

func TestCreateOrUpdate_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed body", `{`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing quantity", `{"productId":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative quantity", `{"productId":1,"quantity":-1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown product", `{"productId":999,"quantity":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/inventory", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestCreateOrUpdate_ProductServiceDown(t *testing.T) {
	s := newTestServer(t)
	s.products.existsErr = &domain.RetryExhaustedError{Attempts: 3, Last: errors.New("503")}

	rec := s.do(t, http.MethodPost, "/inventory", `{"productId":1,"quantity":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PRODUCT_SERVICE_ERROR", decodeError(t, rec).Code)
}

func TestGetByProduct(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, 1, 7, 5)

	rec := s.do(t, http.MethodGet, "/inventory/product/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/inventory/product/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INVENTORY_NOT_FOUND", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/inventory/product/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateQuantity(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, 1, 7, 5)

	rec := s.do(t, http.MethodPatch, "/inventory/product/1/quantity?quantity=30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc singleDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, float64(30), doc.Data.Attributes["quantity"])

	rec = s.do(t, http.MethodPatch, "/inventory/product/1/quantity", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchase(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, 1, 6, 5)

	rec := s.do(t, http.MethodPost, "/inventory/product/1/purchase", `{"quantity":2,"request_id":"r-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc singleDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, float64(4), doc.Data.Attributes["quantity"])
	assert.Equal(t, true, doc.Data.Attributes["lowStock"])

	rec = s.do(t, http.MethodPost, "/inventory/product/1/purchase", `{"quantity":2,"request_id":"r-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/inventory/product/1/purchase", `{"quantity":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", e.Code)
	assert.Equal(t, float64(100), e.Meta["requested"])
	assert.Equal(t, float64(4), e.Meta["available"])

	rec = s.do(t, http.MethodPost, "/inventory/product/1/purchase", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestCheckStock(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, 1, 6, 5)

	rec := s.do(t, http.MethodGet, "/inventory/product/1/check-stock?quantity=6", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc singleDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, true, doc.Data.Attributes["available"])

	rec = s.do(t, http.MethodGet, "/inventory/product/42/check-stock?quantity=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, false, doc.Data.Attributes["available"])
}

func TestListAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, 1, 50, 5)
	s.seed(t, 2, 0, 5)

	rec := s.do(t, http.MethodGet, "/inventory/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []json.RawMessage `json:"data"`
		Meta map[string]any    `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
	assert.Equal(t, float64(1), list.Meta["total"])

	rec = s.do(t, http.MethodGet, "/inventory/out-of-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/inventory/product/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/inventory/product/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor_Internal(t *testing.T) {
	status, code, _ := statusFor(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", code)
}

func TestGRPCHealth(t *testing.T) {
	var probeErr error
	h := NewGRPCHandler(func(context.Context) error { return probeErr }, zap.NewNop())
	ctx := context.Background()
	req := &healthpb.HealthCheckRequest{Service: ServiceName}

	resp, err := h.Health().Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	h.Refresh(ctx)
	resp, err = h.Health().Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	probeErr = errors.New("ledger down")
	h.Refresh(ctx)
	resp, err = h.Health().Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
