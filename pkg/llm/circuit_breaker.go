package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is refusing provider calls.
var ErrCircuitOpen = errors.New("text generation provider circuit open")

// CircuitState is the breaker's position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen lets exactly one probe call through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig sets when the breaker opens and how long it stays open.
type CircuitBreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 consecutive provider failures
// and probes again after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// BreakerStatus is a point-in-time view of a CircuitBreaker, reported by the
// health tool.
type BreakerStatus struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	RetryInMs           int64  `json:"retry_in_ms,omitempty"`
}

// CircuitBreaker guards the text generation provider shared by every
// question a process answers. Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker. A threshold below 1 is treated as 1.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a provider call may proceed. Once the cooldown has
// passed an open breaker turns half-open and admits one probe; the probe's
// outcome decides whether it closes or reopens.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		wait := cb.remaining()
		if wait > 0 {
			return fmt.Errorf("%w after %d consecutive failures, retry in %s",
				ErrCircuitOpen, cb.failures, wait.Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		return fmt.Errorf("%w, probe call in flight", ErrCircuitOpen)
	default:
		return nil
	}
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
}

// RecordFailure counts a provider failure. A failed probe reopens the
// breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// Status returns the current state and failure streak.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := BreakerStatus{State: cb.state.String(), ConsecutiveFailures: cb.failures}
	if cb.state == CircuitOpen {
		status.RetryInMs = cb.remaining().Milliseconds()
	}
	return status
}

// remaining is the cooldown left while open. Callers hold mu.
func (cb *CircuitBreaker) remaining() time.Duration {
	return max(cb.cfg.Cooldown-cb.now().Sub(cb.openedAt), 0)
}
