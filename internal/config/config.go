// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	LedgerMemory = "memory"
	LedgerMySQL  = "mysql"
	LedgerRedis  = "redis"
)

// Config holds configuration for the servers, the ledger backend, the
// products service client and the event sinks.
type Config struct {
	Env             string
	HTTPAddr        string
	GRPCAddr        string
	APIKey          string
	ShutdownTimeout time.Duration

	LedgerDriver string
	MySQLDSN     string
	RedisAddr    string

	ProductsURL     string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64

	DefaultMinStock int
	IdempotencyTTL  time.Duration

	AMQPURL      string
	AMQPExchange string
	EventBuffer  int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

// durenv accepts Go duration syntax ("90s", "24h").
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		Env:             getenv("APP_ENV", "local"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getenv("GRPC_ADDR", ":50051"),
		APIKey:          getenv("API_KEY", "change-me"),
		ShutdownTimeout: durenv("SHUTDOWN_TIMEOUT", 15*time.Second),

		LedgerDriver: getenv("LEDGER_DRIVER", LedgerMemory),
		MySQLDSN:     getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/inventory?parseTime=true"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),

		ProductsURL:     getenv("PRODUCTS_URL", "http://localhost:8081"),
		ConnectTimeout:  durenvms("PRODUCTS_CONNECT_TIMEOUT_MS", 5000),
		ReadTimeout:     durenvms("PRODUCTS_READ_TIMEOUT_MS", 5000),
		RetryAttempts:   atoienv("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:  durenvms("RETRY_BASE_DELAY_MS", 1000),
		RetryMultiplier: floatenv("RETRY_MULTIPLIER", 2),

		DefaultMinStock: atoienv("DEFAULT_MIN_STOCK", 5),
		IdempotencyTTL:  durenv("IDEMPOTENCY_TTL", 24*time.Hour),

		AMQPURL:      getenv("AMQP_URL", ""),
		AMQPExchange: getenv("AMQP_EXCHANGE", "inventory.events"),
		EventBuffer:  atoienv("EVENT_BUFFER", 1024),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.LedgerDriver {
	case LedgerMemory, LedgerMySQL, LedgerRedis:
	default:
		return fmt.Errorf("unknown ledger driver %q", c.LedgerDriver)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key must not be empty")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %v", c.RetryMultiplier)
	}
	if c.DefaultMinStock < 0 {
		return fmt.Errorf("default min stock must not be negative, got %d", c.DefaultMinStock)
	}
	return nil
}
