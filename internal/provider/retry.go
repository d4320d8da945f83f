package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryConfig governs exponential backoff for transient vendor errors
// (rate limits, 5xx, connection resets): a capped exponential multiplier
// applied to an initial backoff. No jitter is added, and a delay
// suggested by the vendor is not consulted.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig is tuned for typical per-minute rate-limit windows.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        20 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the delay before retry attempt n (0-indexed),
// capped at MaxBackoff.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
	}
	if time.Duration(backoff) > c.MaxBackoff {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// IsRetryable reports whether err looks like a transient vendor failure:
// rate limiting, connection resets, or 5xx cluster errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "too many requests", "503", "502", "500", "connection reset", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WithRetry runs fn up to cfg.MaxRetries+1 times, sleeping with
// exponential backoff between attempts while err is retryable and ctx
// has not been cancelled.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.CalculateBackoff(attempt)):
		}
	}
	return lastErr
}
