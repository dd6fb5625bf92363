package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/metrics"
)

const (
	apiKeyHeader = "X-API-Key"
	maxBodyBytes = 1 << 20

	opExists = "exists"
	opFetch  = "fetch_attributes"
)

type ProductClientConfig struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retry          RetryPolicy
}

// HTTPProductClient talks to the products service over HTTP.
type HTTPProductClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryPolicy
	logger  *zap.Logger
	flight  singleflight.Group
}

func NewHTTPProductClient(cfg ProductClientConfig, logger *zap.Logger) *HTTPProductClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPProductClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		retry:  cfg.Retry,
		logger: logger,
	}
}

func (c *HTTPProductClient) Exists(ctx context.Context, productID int64) (bool, error) {
	url := fmt.Sprintf("%s/products/%d/exists", c.baseURL, productID)

	var exists bool
	err := c.retry.Do(ctx, c.onRetry(opExists, productID), func(ctx context.Context) error {
		status, body, err := c.get(ctx, url)
		if err != nil {
			metrics.RemoteAttempts.WithLabelValues(opExists, "retryable").Inc()
			return err
		}

		switch {
		case status == http.StatusNotFound:
			metrics.RemoteAttempts.WithLabelValues(opExists, "not_found").Inc()
			exists = false
			return nil
		case status >= 500:
			metrics.RemoteAttempts.WithLabelValues(opExists, "retryable").Inc()
			return &ServerError{StatusCode: status}
		case status >= 400:
			metrics.RemoteAttempts.WithLabelValues(opExists, "hard").Inc()
			return &domain.RemoteStatusError{StatusCode: status}
		}

		var v bool
		if err := json.Unmarshal(body, &v); err != nil {
			metrics.RemoteAttempts.WithLabelValues(opExists, "protocol").Inc()
			return fmt.Errorf("%w: exists body: %v", domain.ErrRemoteProtocol, err)
		}
		metrics.RemoteAttempts.WithLabelValues(opExists, "ok").Inc()
		exists = v
		return nil
	})
	if err != nil {
		c.logFailure(opExists, productID, err)
		return false, err
	}

	c.logger.Debug("product existence checked",
		zap.Int64("product_id", productID), zap.Bool("exists", exists))
	return exists, nil
}

// FetchAttributes collapses concurrent lookups of the same product into one
// outbound call sequence. Each caller still honours its own context.
func (c *HTTPProductClient) FetchAttributes(ctx context.Context, productID int64) (domain.ProductDescriptor, error) {
	key := strconv.FormatInt(productID, 10)
	ch := c.flight.DoChan(key, func() (any, error) {
		return c.fetchAttributes(context.WithoutCancel(ctx), productID)
	})

	select {
	case <-ctx.Done():
		return domain.ProductDescriptor{}, fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.ProductDescriptor{}, res.Err
		}
		return res.Val.(domain.ProductDescriptor), nil
	}
}

type productEnvelope struct {
	Data *struct {
		Attributes *struct {
			Name     *string `json:"name"`
			SKU      *string `json:"sku"`
			Category *string `json:"category"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *HTTPProductClient) fetchAttributes(ctx context.Context, productID int64) (domain.ProductDescriptor, error) {
	url := fmt.Sprintf("%s/products/%d", c.baseURL, productID)
	desc := domain.ProductDescriptor{ID: productID}

	err := c.retry.Do(ctx, c.onRetry(opFetch, productID), func(ctx context.Context) error {
		status, body, err := c.get(ctx, url)
		if err != nil {
			metrics.RemoteAttempts.WithLabelValues(opFetch, "retryable").Inc()
			return err
		}

		switch {
		case status == http.StatusNotFound:
			metrics.RemoteAttempts.WithLabelValues(opFetch, "not_found").Inc()
			return fmt.Errorf("%w: product %d", domain.ErrRemoteNotFound, productID)
		case status >= 500:
			metrics.RemoteAttempts.WithLabelValues(opFetch, "retryable").Inc()
			return &ServerError{StatusCode: status}
		case status >= 400:
			metrics.RemoteAttempts.WithLabelValues(opFetch, "hard").Inc()
			return &domain.RemoteStatusError{StatusCode: status}
		}

		var env productEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			metrics.RemoteAttempts.WithLabelValues(opFetch, "protocol").Inc()
			return fmt.Errorf("%w: product body: %v", domain.ErrRemoteProtocol, err)
		}
		if env.Data != nil && env.Data.Attributes != nil {
			attrs := env.Data.Attributes
			desc.Name = deref(attrs.Name)
			desc.SKU = deref(attrs.SKU)
			desc.Category = deref(attrs.Category)
		}
		metrics.RemoteAttempts.WithLabelValues(opFetch, "ok").Inc()
		return nil
	})
	if err != nil {
		c.logFailure(opFetch, productID, err)
		return domain.ProductDescriptor{}, err
	}
	return desc, nil
}

func (c *HTTPProductClient) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	return resp.StatusCode, body, nil
}

func (c *HTTPProductClient) onRetry(op string, productID int64) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, err error) {
		c.logger.Warn("products service call failed, retrying",
			zap.String("op", op),
			zap.Int64("product_id", productID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}
}

func (c *HTTPProductClient) logFailure(op string, productID int64, err error) {
	var exhausted *domain.RetryExhaustedError
	if errors.As(err, &exhausted) {
		metrics.RemoteExhausted.WithLabelValues(op).Inc()
		c.logger.Error("products service unavailable after retries",
			zap.String("op", op),
			zap.Int64("product_id", productID),
			zap.Int("attempts", exhausted.Attempts),
			zap.Error(err),
		)
		return
	}
	c.logger.Warn("products service call failed",
		zap.String("op", op), zap.Int64("product_id", productID), zap.Error(err))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
