package event

import (
	"context"

	"github.com/rl1809/inventory-service/internal/core/domain"
	"github.com/rl1809/inventory-service/internal/port"
)

// Multi fans an event out to every sink in order.
type Multi []port.EventPublisher

func (m Multi) Publish(ctx context.Context, e domain.Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}
