package port

import "context"

type IdempotencyRepository interface {
	// Claim sets the key if absent, returns false if it already exists
	Claim(ctx context.Context, key string) (bool, error)

	// Release removes a key so a failed request can be retried
	Release(ctx context.Context, key string) error
}
