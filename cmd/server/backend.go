package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-service/internal/adapter/handler"
	"github.com/rl1809/inventory-service/internal/adapter/storage"
	"github.com/rl1809/inventory-service/internal/config"
	"github.com/rl1809/inventory-service/internal/port"
)

// backend bundles the ledger chosen by configuration with the store used
// for purchase request ids.
type backend struct {
	ledger      port.LedgerRepository
	idempotency port.IdempotencyRepository
	probe       handler.Probe
	closers     []func() error
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.LedgerDriver {
	case config.LedgerMySQL:
		return openMySQL(ctx, cfg, logger)
	case config.LedgerRedis:
		rdb, err := openRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		adapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		return &backend{
			ledger:      adapter,
			idempotency: adapter,
			probe:       func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			closers:     []func() error{rdb.Close},
		}, nil
	default:
		mem, err := storage.NewMemoryAdapter(cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory ledger, stock is lost on restart")
		return &backend{ledger: mem, idempotency: mem}, nil
	}
}

func openMySQL(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	logger.Info("connected to mysql")

	ledger := storage.NewMySQLAdapter(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	b := &backend{
		ledger:  ledger,
		probe:   db.PingContext,
		closers: []func() error{db.Close},
	}

	// request ids are shared across replicas through redis when it is reachable
	if rdb, err := openRedis(ctx, cfg.RedisAddr); err == nil {
		b.idempotency = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		b.closers = append(b.closers, rdb.Close)
		logger.Info("purchase request ids stored in redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem, merr := storage.NewMemoryAdapter(cfg.IdempotencyTTL)
		if merr != nil {
			b.close()
			return nil, merr
		}
		b.idempotency = mem
		logger.Warn("redis unavailable, purchase request ids kept in process", zap.Error(err))
	}
	return b, nil
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return rdb, nil
}
