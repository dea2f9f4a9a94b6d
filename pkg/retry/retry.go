// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, fraction of the delay added or removed at random
	MaxSameErrorType int     // after N consecutive errors of the same type, stop retrying
}

// DefaultConfig returns the backoff used around text-generation calls:
// 2 retries starting at 500ms, capped at 5s, doubling, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       2,
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1..1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn until it succeeds, returns a permanent error, or the retry
// budget is spent. Only errors accepted by IsRetryable are retried.
// Respects context cancellation while waiting.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// DoWithResult is Do for functions that return a value. The value of the
// last attempt is returned alongside its error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		r, err := fn()
		result = r
		return err
	})
	return result, err
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err is transient.
//
// An error in the chain implementing RetryableError decides for itself;
// anything else is matched against known transient messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"i/o timeout",
		"network is unreachable",
		"database is locked",
		"429",
		"500",
		"502",
		"503",
		"504",
		"529",
		"overloaded",
		"rate limit",
		"service unavailable",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can
// be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"529", "503", "502", "504", "500", "429"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "database is locked"):
		return "locked"
	}

	return "unknown"
}
