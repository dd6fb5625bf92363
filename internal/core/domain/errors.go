package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("inventory not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrDuplicateRequest      = errors.New("duplicate request")

	ErrRemoteNotFound    = errors.New("remote: product not found")
	ErrRemoteUnavailable = errors.New("remote: service unavailable")
	ErrRemoteProtocol    = errors.New("remote: malformed response")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("inventory not found for product %d", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// RemoteStatusError is a client-class response from the products service that
// is surfaced on the first attempt without retrying.
type RemoteStatusError struct {
	StatusCode int
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d", e.StatusCode)
}

// RetryExhaustedError means every attempt of the retry policy failed with a
// retryable condition. It matches ErrRemoteUnavailable.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("remote: unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRemoteUnavailable }

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// DependencyError reports that a collaborator needed to complete Op could not
// answer. The remote cause stays reachable through errors.Is/As.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnavailable }

func (e *DependencyError) Unwrap() error { return e.Err }
