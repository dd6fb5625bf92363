package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"APP_ENV", "HTTP_ADDR", "GRPC_ADDR", "API_KEY", "SHUTDOWN_TIMEOUT",
	"LEDGER_DRIVER", "MYSQL_DSN", "REDIS_ADDR",
	"PRODUCTS_URL", "PRODUCTS_CONNECT_TIMEOUT_MS", "PRODUCTS_READ_TIMEOUT_MS",
	"RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY_MS", "RETRY_MULTIPLIER",
	"DEFAULT_MIN_STOCK", "IDEMPOTENCY_TTL", "AMQP_URL", "AMQP_EXCHANGE", "EVENT_BUFFER",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c := Load()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, 15*time.Second, c.ShutdownTimeout)
	assert.Equal(t, LedgerMemory, c.LedgerDriver)
	assert.Equal(t, 5*time.Second, c.ConnectTimeout)
	assert.Equal(t, 5*time.Second, c.ReadTimeout)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, time.Second, c.RetryBaseDelay)
	assert.Equal(t, 2.0, c.RetryMultiplier)
	assert.Equal(t, 5, c.DefaultMinStock)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
	assert.Empty(t, c.AMQPURL)
	assert.Equal(t, 1024, c.EventBuffer)
	require.NoError(t, c.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("LEDGER_DRIVER", "redis")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE_DELAY_MS", "250")
	t.Setenv("RETRY_MULTIPLIER", "1.5")
	t.Setenv("PRODUCTS_READ_TIMEOUT_MS", "800")
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	c := Load()

	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, 2*time.Second, c.ShutdownTimeout)
	assert.Equal(t, LedgerRedis, c.LedgerDriver)
	assert.Equal(t, 5, c.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, c.RetryBaseDelay)
	assert.Equal(t, 1.5, c.RetryMultiplier)
	assert.Equal(t, 800*time.Millisecond, c.ReadTimeout)
	assert.Equal(t, time.Hour, c.IdempotencyTTL)
}

func TestLoadMalformedFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_MAX_ATTEMPTS", "three")
	t.Setenv("IDEMPOTENCY_TTL", "forever")
	c := Load()

	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := Load()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.LedgerDriver = "postgres" }},
		{"empty api key", func(c *Config) { c.APIKey = "" }},
		{"zero attempts", func(c *Config) { c.RetryAttempts = 0 }},
		{"shrinking backoff", func(c *Config) { c.RetryMultiplier = 0.5 }},
		{"negative min stock", func(c *Config) { c.DefaultMinStock = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
