package port

import (
	"context"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

type EventPublisher interface {
	// Publish is best effort. It must not block the caller for long and its failure
	// never fails the originating operation
	Publish(ctx context.Context, event domain.Event)
}
