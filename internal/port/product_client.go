package port

import (
	"context"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

type ProductClient interface {
	// Exists reports false for a definitive not-found; errors only after the retry budget
	// is spent or on a hard failure
	Exists(ctx context.Context, productID int64) (bool, error)

	// FetchAttributes fails with domain.ErrRemoteNotFound, domain.ErrRemoteUnavailable
	// or domain.ErrRemoteProtocol
	FetchAttributes(ctx context.Context, productID int64) (domain.ProductDescriptor, error)
}
