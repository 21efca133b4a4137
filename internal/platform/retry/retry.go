// Package retry provides an injectable bounded retry policy and circuit
// breaker for operations that may fail transiently, such as optimistic
// version conflicts on ledger balances.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrRetriesExhausted is returned when the policy gives up.
var ErrRetriesExhausted = errors.New("retry: attempts exhausted")

// Policy retries an operation with exponential backoff for a bounded number
// of attempts. Only errors the caller marks retryable are retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy matches the ledger conflict-retry budget: three attempts
// with short backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// Do runs op, retrying while retryable(err) is true, up to MaxAttempts.
// The last error is wrapped with ErrRetriesExhausted when the budget runs
// out.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return errors.Join(ErrRetriesExhausted, lastErr)
}

// NewBreaker constructs a circuit breaker (closed/open/half-open) guarding
// a named external dependency. After maxFailures consecutive failures the
// breaker opens for the cooldown interval, then admits a trial request.
func NewBreaker(name string, maxFailures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}
