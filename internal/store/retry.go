package store

import (
	"context"
	"time"

	"evalform/internal/domain"
)

const (
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
	defaultMaxAttempts  = 5
)

// Retrying wraps a result store and retries Append with exponential backoff
// when the backend reports a transient failure. Permanent failures and
// exhausted retries surface as *domain.StoreError; the session index is
// never advanced on a failed save.
type Retrying struct {
	domain.ResultStore

	// IsTransient classifies backend errors. Nil means nothing is
	// retryable.
	IsTransient func(error) bool

	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// WithRetry wraps a store with the default backoff policy: 1s initial
// delay, doubling, capped at 10s, five attempts.
func WithRetry(s domain.ResultStore, isTransient func(error) bool) *Retrying {
	return &Retrying{
		ResultStore:  s,
		IsTransient:  isTransient,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		MaxAttempts:  defaultMaxAttempts,
	}
}

// Append persists events through the wrapped store, retrying transient
// failures until the bounded attempts run out.
func (r *Retrying) Append(ctx context.Context, events []domain.RatingEvent) error {
	delay := r.InitialDelay
	var err error
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &domain.StoreError{Op: "append", Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
			if delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}

		err = r.ResultStore.Append(ctx, events)
		if err == nil {
			return nil
		}
		if r.IsTransient == nil || !r.IsTransient(err) {
			return &domain.StoreError{Op: "append", Err: err}
		}
	}
	return &domain.StoreError{Op: "append", Err: err}
}
