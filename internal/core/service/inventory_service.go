package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/metrics"
	"github.com/rl1809/inventory-service/internal/port"
)

// enrichParallelism bounds concurrent attribute fetches when a listing is enriched.
const enrichParallelism = 8

type InventoryService struct {
	ledger          port.LedgerRepository
	products        port.ProductClient
	events          port.EventPublisher
	idempotency     port.IdempotencyRepository
	defaultMinStock int
	logger          *zap.Logger
}

// NewInventoryService wires the engine. idempotency may be nil, in which case
// purchase request ids are ignored.
func NewInventoryService(
	ledger port.LedgerRepository,
	products port.ProductClient,
	events port.EventPublisher,
	idempotency port.IdempotencyRepository,
	defaultMinStock int,
	logger *zap.Logger,
) *InventoryService {
	if defaultMinStock < 0 {
		defaultMinStock = domain.DefaultMinStock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		ledger:          ledger,
		products:        products,
		events:          events,
		idempotency:     idempotency,
		defaultMinStock: defaultMinStock,
		logger:          logger,
	}
}

type purchaseOptions struct {
	requestID string
}

type PurchaseOption func(*purchaseOptions)

// WithRequestID makes the purchase at-most-once for the given id.
func WithRequestID(id string) PurchaseOption {
	return func(o *purchaseOptions) { o.requestID = id }
}

// CreateOrUpdate confirms the product exists remotely, then creates or
// overwrites its ledger row. A nil minStock keeps the stored threshold, or
// the configured default for a new row.
func (s *InventoryService) CreateOrUpdate(ctx context.Context, productID int64, quantity int, minStock *int) (domain.View, error) {
	if err := validateProductID(productID); err != nil {
		return domain.View{}, err
	}
	if quantity < 0 {
		return domain.View{}, &domain.ValidationError{Field: "quantity", Reason: "must be zero or greater"}
	}
	if minStock != nil && *minStock < 0 {
		return domain.View{}, &domain.ValidationError{Field: "minStock", Reason: "must be zero or greater"}
	}

	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		s.logger.Error("product existence check failed",
			zap.Int64("product_id", productID), zap.Error(err))
		return domain.View{}, &domain.DependencyError{Op: "validate product", Err: err}
	}
	if !exists {
		return domain.View{}, &domain.ValidationError{Field: "productId", Reason: "product does not exist"}
	}

	existing, err := s.ledger.FindByProduct(ctx, productID)
	if err != nil {
		return domain.View{}, fmt.Errorf("find inventory: %w", err)
	}

	previous := 0
	threshold := s.defaultMinStock
	if existing != nil {
		previous = existing.Quantity
		threshold = existing.MinStock
	}
	if minStock != nil {
		threshold = *minStock
	}

	saved, err := s.ledger.Upsert(ctx, domain.StockRecord{
		ProductID: productID,
		Quantity:  quantity,
		MinStock:  threshold,
	})
	if err != nil {
		return domain.View{}, fmt.Errorf("upsert inventory: %w", err)
	}

	s.logger.Info("inventory stored",
		zap.Int64("product_id", productID),
		zap.Int("previous_quantity", previous),
		zap.Int("quantity", saved.Quantity),
		zap.Int("min_stock", saved.MinStock))
	s.events.Publish(ctx, domain.NewInventoryChanged(productID, previous, saved.Quantity, domain.ReasonStockUpdate))

	return s.enrich(ctx, saved), nil
}

func (s *InventoryService) GetByProduct(ctx context.Context, productID int64) (domain.View, error) {
	rec, err := s.mustFind(ctx, productID)
	if err != nil {
		return domain.View{}, err
	}
	return s.enrich(ctx, *rec), nil
}

// UpdateQuantity overwrites the quantity of an existing row. The remote
// existence gate is not consulted again.
func (s *InventoryService) UpdateQuantity(ctx context.Context, productID int64, quantity int) (domain.View, error) {
	if quantity < 0 {
		return domain.View{}, &domain.ValidationError{Field: "quantity", Reason: "must be zero or greater"}
	}
	rec, err := s.mustFind(ctx, productID)
	if err != nil {
		return domain.View{}, err
	}

	n, err := s.ledger.SetQuantity(ctx, productID, quantity)
	if err != nil {
		return domain.View{}, fmt.Errorf("set quantity: %w", err)
	}
	if n == 0 {
		// deleted between the read and the write
		return domain.View{}, &domain.NotFoundError{ProductID: productID}
	}

	updated := s.reload(ctx, *rec, func(r *domain.StockRecord) { r.Quantity = quantity })

	s.logger.Info("inventory quantity adjusted",
		zap.Int64("product_id", productID),
		zap.Int("previous_quantity", rec.Quantity),
		zap.Int("quantity", quantity))
	s.events.Publish(ctx, domain.NewInventoryChanged(productID, rec.Quantity, quantity, domain.ReasonQuantityAdjustment))

	return s.enrich(ctx, updated), nil
}

// Purchase decrements stock by quantity. The ledger's guarded decrement is the
// only correctness boundary; the availability pre-check just fails fast.
func (s *InventoryService) Purchase(ctx context.Context, productID int64, quantity int, opts ...PurchaseOption) (view domain.View, err error) {
	var o purchaseOptions
	for _, opt := range opts {
		opt(&o)
	}

	defer func() { metrics.Purchases.WithLabelValues(purchaseOutcome(err)).Inc() }()

	if err := validateProductID(productID); err != nil {
		return domain.View{}, err
	}
	if quantity < 1 {
		return domain.View{}, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	if o.requestID != "" && s.idempotency != nil {
		claimed, cerr := s.idempotency.Claim(ctx, o.requestID)
		if cerr != nil {
			return domain.View{}, fmt.Errorf("idempotency check failed: %w", cerr)
		}
		if !claimed {
			return domain.View{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := s.idempotency.Release(context.WithoutCancel(ctx), o.requestID); rerr != nil {
				s.logger.Warn("release request id failed",
					zap.String("request_id", o.requestID), zap.Error(rerr))
			}
		}()
	}

	rec, err := s.mustFind(ctx, productID)
	if err != nil {
		return domain.View{}, err
	}
	if !rec.HasStock(quantity) {
		return domain.View{}, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: rec.AvailableQuantity(),
		}
	}

	n, err := s.ledger.ConditionalDecrement(ctx, productID, quantity)
	if err != nil {
		return domain.View{}, fmt.Errorf("stock decrement failed: %w", err)
	}
	if n == 0 {
		available := 0
		if latest, ferr := s.ledger.FindByProduct(ctx, productID); ferr == nil && latest != nil {
			available = latest.AvailableQuantity()
		}
		return domain.View{}, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: available,
		}
	}

	after := s.reload(ctx, *rec, func(r *domain.StockRecord) { r.Quantity -= quantity })
	previous := after.Quantity + quantity

	s.logger.Info("purchase processed",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", after.Quantity),
		zap.String("request_id", o.requestID))
	s.events.Publish(ctx, domain.NewInventoryChanged(productID, previous, after.Quantity, domain.ReasonPurchase))

	if after.IsLowStock() {
		metrics.LowStockAlerts.Inc()
		s.events.Publish(ctx, domain.NewLowStockAlert(productID, after.Quantity, after.MinStock))
	}

	return s.enrich(ctx, after), nil
}

func (s *InventoryService) Delete(ctx context.Context, productID int64) error {
	rec, err := s.mustFind(ctx, productID)
	if err != nil {
		return err
	}

	ok, err := s.ledger.Delete(ctx, productID)
	if err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	if !ok {
		return &domain.NotFoundError{ProductID: productID}
	}

	s.logger.Info("inventory deleted",
		zap.Int64("product_id", productID), zap.Int("previous_quantity", rec.Quantity))
	s.events.Publish(ctx, domain.NewInventoryChanged(productID, rec.Quantity, 0, domain.ReasonDeleted))
	return nil
}

// HasStock reports false, not an error, when the product has no ledger row.
func (s *InventoryService) HasStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if err := validateProductID(productID); err != nil {
		return false, err
	}
	if quantity < 1 {
		return false, &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	rec, err := s.ledger.FindByProduct(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("find inventory: %w", err)
	}
	if rec == nil {
		return false, nil
	}
	return rec.HasStock(quantity), nil
}

func (s *InventoryService) ListLowStock(ctx context.Context) ([]domain.View, error) {
	records, err := s.ledger.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return s.enrichAll(ctx, records), nil
}

func (s *InventoryService) ListOutOfStock(ctx context.Context) ([]domain.View, error) {
	records, err := s.ledger.ListOutOfStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list out of stock: %w", err)
	}
	return s.enrichAll(ctx, records), nil
}

func (s *InventoryService) mustFind(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	rec, err := s.ledger.FindByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("find inventory: %w", err)
	}
	if rec == nil {
		return nil, &domain.NotFoundError{ProductID: productID}
	}
	return rec, nil
}

// reload re-reads a row after a successful write. If the read fails the
// write is already committed, so the expected state is derived from the
// previous snapshot instead of failing the call.
func (s *InventoryService) reload(ctx context.Context, prev domain.StockRecord, apply func(*domain.StockRecord)) domain.StockRecord {
	rec, err := s.ledger.FindByProduct(ctx, prev.ProductID)
	if err == nil && rec != nil {
		return *rec
	}
	if err != nil {
		s.logger.Warn("reload inventory failed",
			zap.Int64("product_id", prev.ProductID), zap.Error(err))
	}
	apply(&prev)
	return prev
}

// enrich never fails. Any attribute fetch error degrades to a descriptor
// carrying only the product id.
func (s *InventoryService) enrich(ctx context.Context, rec domain.StockRecord) domain.View {
	desc, err := s.products.FetchAttributes(ctx, rec.ProductID)
	if err != nil {
		metrics.EnrichmentFailures.Inc()
		s.logger.Warn("product attributes unavailable",
			zap.Int64("product_id", rec.ProductID), zap.Error(err))
		desc = domain.ProductDescriptor{ID: rec.ProductID}
	}
	desc.ID = rec.ProductID
	return domain.NewView(rec, desc)
}

func (s *InventoryService) enrichAll(ctx context.Context, records []domain.StockRecord) []domain.View {
	views := make([]domain.View, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichParallelism)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			views[i] = s.enrich(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	return views
}

func validateProductID(productID int64) error {
	if productID <= 0 {
		return &domain.ValidationError{Field: "productId", Reason: "must be positive"}
	}
	return nil
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
