package monitor

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides whether and when a failed task runs again. It is
// deliberately independent of any queue implementation so the policy
// travels with the task-execution boundary, not the transport.
type RetryPolicy struct {
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// NewRetryPolicy builds a policy with jittered exponential backoff.
// Attempts below 1 and non-positive backoffs fall back to safe values.
func NewRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
	}
}

// MaxAttempts returns the bounded attempt count.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry reports whether the error warrants another attempt.
// Only transient feed errors retry; permanent errors, context
// cancellation, and exhausted budgets do not.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait duration before the given attempt (1-based),
// exponentially grown from the minimum and capped at the maximum, with
// half-delay jitter so concurrent retries spread out.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.minBackoff) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxBackoff) {
		delay = float64(p.maxBackoff)
	}
	half := time.Duration(delay) / 2
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
