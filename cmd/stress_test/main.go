package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-service/internal/adapter/event"
	"github.com/rl1809/inventory-service/internal/adapter/storage"
	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/core/service"
	"github.com/rl1809/inventory-service/internal/port"
)

const productID int64 = 424242

var (
	redisAddr     string
	initialStock  int
	totalRequests int
	amount        int
	verbose       bool
)

// knownProducts accepts every id so the stress run never depends on a live
// products service.
type knownProducts struct{}

func (knownProducts) Exists(context.Context, int64) (bool, error) { return true, nil }

func (knownProducts) FetchAttributes(ctx context.Context, id int64) (domain.ProductDescriptor, error) {
	return domain.ProductDescriptor{ID: id, Name: "stress-item"}, nil
}

var rootCmd = &cobra.Command{
	Use:   "stress_test",
	Short: "Fire concurrent purchases at one product and verify no unit is sold twice",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&redisAddr, "redis-addr", "", "use the Redis ledger at this address instead of the in-memory one")
	f.IntVar(&initialStock, "stock", 20, "initial stock")
	f.IntVar(&totalRequests, "requests", 50, "concurrent purchase requests")
	f.IntVar(&amount, "amount", 1, "units per purchase")
	f.BoolVar(&verbose, "verbose", false, "log every purchase")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	ledger, idem, cleanup, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// start from a clean record every run
	if _, err := ledger.Delete(ctx, productID); err != nil {
		return fmt.Errorf("failed to reset stock: %w", err)
	}
	if _, err := ledger.Upsert(ctx, domain.StockRecord{ProductID: productID, Quantity: initialStock, MinStock: 0}); err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}

	events := event.NewAsyncPublisher(event.NewLogPublisher(logger), "stress", totalRequests*2, 2, logger)
	inventory := service.NewInventoryService(ledger, knownProducts{}, events, idem, 0, logger)

	// Counters
	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := inventory.Purchase(ctx, productID, amount, service.WithRequestID(uuid.NewString()))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				otherCount.Add(1)
				fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)
	events.Close()

	success := int(successCount.Load())
	insufficient := int(insufficientCount.Load())
	expectedSuccess := min(initialStock/amount, totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d x %d units\n", totalRequests, amount)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficient)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == expectedSuccess && insufficient == totalRequests-expectedSuccess {
		fmt.Printf("PASS: exactly %d purchases succeeded, %d were rejected\n", success, insufficient)
	} else {
		fmt.Printf("FAIL: expected %d success/%d rejected, got %d/%d\n",
			expectedSuccess, totalRequests-expectedSuccess, success, insufficient)
		failed = true
	}

	rec, err := ledger.FindByProduct(ctx, productID)
	if err != nil || rec == nil {
		return fmt.Errorf("failed to read final stock: %v", err)
	}
	expectedStock := initialStock - expectedSuccess*amount
	fmt.Printf("Final Stock: %d\n", rec.Quantity)
	if rec.Quantity == expectedStock {
		fmt.Printf("PASS: stock settled at %d\n", expectedStock)
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", expectedStock, rec.Quantity)
		failed = true
	}

	if failed {
		return errors.New("stress test failed")
	}
	return nil
}

func openLedger(ctx context.Context) (port.LedgerRepository, port.IdempotencyRepository, func(), error) {
	if redisAddr == "" {
		mem, err := storage.NewMemoryAdapter(time.Hour)
		if err != nil {
			return nil, nil, nil, err
		}
		return mem, mem, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	adapter := storage.NewRedisAdapter(rdb, time.Hour)
	return adapter, adapter, func() { rdb.Close() }, nil
}
