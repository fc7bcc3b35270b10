package httpx

import (
	"time"

	"chartdeck.aero/cli/internal/core/ports"
)

// BackoffPolicy retries network failures and gateway-class server errors
// with exponential backoff.
type BackoffPolicy struct {
	MaxRetries int
	Base       time.Duration
}

// DefaultBackoffPolicy matches the backend's guidance: up to 2 retries,
// 500ms base doubling per attempt.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{MaxRetries: 2, Base: 500 * time.Millisecond}
}

// ShouldRetry reports whether the attempt should be retried and the backoff
// to wait first.
func (p *BackoffPolicy) ShouldRetry(status int, err error, attempt int) (bool, time.Duration) {
	if attempt >= p.MaxRetries {
		return false, 0
	}
	transient := err != nil ||
		status == 502 || status == 503 || status == 504
	if !transient {
		return false, 0
	}
	return true, p.Base << attempt
}

var _ ports.RetryPolicy = (*BackoffPolicy)(nil)
