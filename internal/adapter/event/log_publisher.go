package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/metrics"
)

// LogPublisher writes events as structured log lines. Alerts go out at Warn.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e domain.Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Int64("product_id", e.ProductID),
		zap.String("reason", string(e.Reason)),
		zap.Time("timestamp", e.Timestamp),
	}

	switch e.Type {
	case domain.EventLowStockAlert:
		fields = append(fields, intField("current_stock", e.CurrentStock), intField("min_stock", e.MinStock))
		p.logger.Warn("low stock alert", fields...)
	default:
		fields = append(fields,
			intField("previous_quantity", e.PreviousQuantity),
			intField("new_quantity", e.NewQuantity),
			zap.Int("delta", e.Delta()))
		p.logger.Info("inventory changed", fields...)
	}
	metrics.EventsPublished.WithLabelValues("log", "ok").Inc()
}

func intField(key string, v *int) zap.Field {
	if v == nil {
		return zap.Skip()
	}
	return zap.Int(key, *v)
}
