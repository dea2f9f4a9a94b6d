package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/retry"
)

// DefaultCallTimeout bounds a single text-generation call.
const DefaultCallTimeout = 60 * time.Second

// ResilientGenerator wraps a TextGenerator with a per-call timeout, bounded
// retries of transient failures and a circuit breaker.
type ResilientGenerator struct {
	next    TextGenerator
	timeout time.Duration
	retry   *retry.Config
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// ResilientOption configures a ResilientGenerator.
type ResilientOption func(*ResilientGenerator)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *ResilientGenerator) { r.timeout = d }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg *retry.Config) ResilientOption {
	return func(r *ResilientGenerator) { r.retry = cfg }
}

// WithCircuitBreaker shares breaker between generators.
func WithCircuitBreaker(breaker *CircuitBreaker) ResilientOption {
	return func(r *ResilientGenerator) { r.breaker = breaker }
}

// NewResilientGenerator wraps next.
func NewResilientGenerator(next TextGenerator, logger *zap.Logger, opts ...ResilientOption) *ResilientGenerator {
	r := &ResilientGenerator{
		next:    next,
		timeout: DefaultCallTimeout,
		retry:   retry.DefaultConfig(),
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:  logger.Named("resilient"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateText calls the wrapped generator. Configuration failures
// (missing credential, failed initialization) are returned unchanged and do
// not count against the circuit breaker.
func (r *ResilientGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := r.breaker.Allow(); err != nil {
		r.logger.Warn("Text generation blocked", zap.Error(err))
		return "", NewError(ErrorTypeEndpoint, "provider unavailable", false, err)
	}

	attempts := 0
	text, err := retry.DoWithResult(ctx, r.retry, func() (string, error) {
		attempts++
		return r.call(ctx, prompt)
	})
	if err != nil {
		switch GetErrorType(err) {
		case ErrorTypeCredential, ErrorTypeInit:
		default:
			r.breaker.RecordFailure()
		}
		r.logger.Warn("Text generation failed",
			zap.Int("attempts", attempts),
			zap.String("error_type", string(GetErrorType(err))),
			zap.Error(err))
		return "", err
	}

	r.breaker.RecordSuccess()
	return text, nil
}

func (r *ResilientGenerator) call(ctx context.Context, prompt string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.next.GenerateText(ctx, prompt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", NewError(ErrorTypeEndpoint, fmt.Sprintf("request timeout after %s", r.timeout), true, err)
		}
		return "", err
	}
	return text, nil
}

// GetModel returns the wrapped generator's model.
func (r *ResilientGenerator) GetModel() string {
	return r.next.GetModel()
}

// Breaker returns the circuit breaker guarding this generator.
func (r *ResilientGenerator) Breaker() *CircuitBreaker {
	return r.breaker
}
