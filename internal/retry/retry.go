// Package retry provides exponential-backoff retry with a typed
// transient-error marker, shared by the fetcher, the renderer, and the
// LLM clients.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy defines how retries are paced.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultPolicy returns the pacing used by upstream API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// TransientError marks an error as worth retrying. RetryAfter, when set,
// overrides the computed backoff (rate-limit hints).
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps an error so Do will retry it.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientAfter wraps an error with an explicit retry delay.
func TransientAfter(err error, delay time.Duration) error {
	return &TransientError{Err: err, RetryAfter: delay}
}

// IsTransient reports whether the error carries the transient marker.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// BackoffFor computes the backoff before attempt+1 given a zero-based
// attempt index: InitialBackoff * BackoffFactor^attempt, capped at
// MaxBackoff.
func BackoffFor(policy Policy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if policy.MaxBackoff > 0 && backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Do executes fn, retrying transient failures up to MaxRetries additional
// attempts with exponential backoff. Permanent errors return immediately.
// There is no sleep after the final attempt.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		backoff := BackoffFor(policy, attempt)
		var te *TransientError
		if errors.As(err, &te) && te.RetryAfter > 0 {
			backoff = te.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}
