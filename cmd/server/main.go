package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/inventory-service/internal/adapter/client"
	"github.com/rl1809/inventory-service/internal/adapter/event"
	"github.com/rl1809/inventory-service/internal/adapter/handler"
	"github.com/rl1809/inventory-service/internal/config"
	"github.com/rl1809/inventory-service/internal/core/service"
	"github.com/rl1809/inventory-service/internal/port"
)

const (
	eventWorkers   = 4
	healthInterval = 10 * time.Second
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:           "inventory-server",
	Short:         "Run the inventory service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL inventory table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cfg.Env)
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg.LedgerDriver = config.LedgerMySQL
		b, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.close()
		logger.Info("schema ready")
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	f.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address")
	f.StringVar(&cfg.LedgerDriver, "ledger", cfg.LedgerDriver, "ledger backend: memory, mysql or redis")
	f.StringVar(&cfg.MySQLDSN, "mysql-dsn", cfg.MySQLDSN, "MySQL DSN, must include parseTime=true")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	f.StringVar(&cfg.ProductsURL, "products-url", cfg.ProductsURL, "products service base URL")
	f.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "RabbitMQ URL, empty disables the broker sink")

	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func serve(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	products := client.NewHTTPProductClient(client.ProductClientConfig{
		BaseURL:        cfg.ProductsURL,
		APIKey:         cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Retry: client.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  cfg.RetryMultiplier,
			Retryable:   client.DefaultRetryable,
		},
	}, logger.Named("products"))

	sinks := event.Multi{event.NewLogPublisher(logger)}
	var broker *event.AsyncPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err := event.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		broker = event.NewAsyncPublisher(amqpPub, "amqp", cfg.EventBuffer, eventWorkers, logger)
		sinks = append(sinks, broker)
		logger.Info("publishing events to rabbitmq", zap.String("exchange", cfg.AMQPExchange))
	}
	var events port.EventPublisher = sinks

	inventory := service.NewInventoryService(
		backend.ledger, products, events, backend.idempotency, cfg.DefaultMinStock, logger.Named("inventory"))

	// gRPC health
	grpcHandler := handler.NewGRPCHandler(backend.probe, logger.Named("health"))
	grpcServer := grpc.NewServer()
	grpcHandler.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go grpcHandler.Watch(healthCtx, healthInterval)

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(inventory, logger.Named("http")).Routes(cfg.APIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	grpcHandler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// drain queued events before the broker connection closes
	if broker != nil {
		broker.Close()
		logger.Info("event workers stopped")
	}
	return nil
}
