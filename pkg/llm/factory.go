package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// NewTextGenerator builds the generator for cfg.Provider.
//
// Construction never fails outright: when the provider cannot be set up the
// returned generator is an *Unavailable carrying the reason, and the error
// is returned alongside it for logging. Callers can keep serving requests
// and report the reason per request.
func NewTextGenerator(cfg Config, logger *zap.Logger) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAnthropic
	}

	var (
		gen TextGenerator
		err error
	)
	switch provider {
	case ProviderAnthropic:
		gen, err = NewAnthropicClient(&cfg, logger)
	case ProviderOpenAI:
		gen, err = NewClient(&cfg, logger)
	default:
		err = fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		u := NewUnavailable(cfg.Model, err)
		logger.Warn("Text generator unavailable",
			zap.String("provider", provider),
			zap.String("error_type", string(GetErrorType(u.Err()))),
			zap.Error(err))
		return u, u.Err()
	}

	logger.Info("Text generator ready",
		zap.String("provider", provider),
		zap.String("model", gen.GetModel()))
	return gen, nil
}
