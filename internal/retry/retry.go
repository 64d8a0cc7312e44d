// Package retry runs provider calls with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// Policy bounds how often and how long a failing call is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retrying.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles per retry.
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled wait.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of the random delay added to each wait.
	MaxJitter time.Duration
}

// DefaultPolicy matches the audit defaults: three retries starting at two
// seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Validate rejects negative values.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case p.BaseBackoff < 0, p.MaxBackoff < 0, p.MaxJitter < 0:
		return errors.New("backoff durations cannot be negative")
	}
	return nil
}

// Backoff returns the wait before retry number attempt (0-based), without
// jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	return min(p.BaseBackoff<<attempt, p.MaxBackoff)
}

// Do calls fn until it succeeds, returns an error that isRetryable rejects,
// or the policy is exhausted. The wait between attempts is abandoned when
// ctx is done.
func Do[T any](ctx context.Context, p Policy, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt) + jitter(p.MaxJitter)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", p.MaxRetries).
			With("backoff", wait).
			With("error", lastErr.Error()).
			Warn("Call failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, p.MaxRetries, lastErr)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
