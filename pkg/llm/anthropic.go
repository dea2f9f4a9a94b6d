package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// DefaultAnthropicModel is used when no model is configured for the
// anthropic provider.
const DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient generates text with the Anthropic Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	endpoint    string
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
// It returns ErrMissingCredential when cfg carries no API key.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic client: %w", ErrMissingCredential)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:    cfg.Endpoint,
		model:       model,
		temperature: float32(cfg.temperature()),
		maxTokens:   cfg.maxTokens(),
		logger:      logger.Named("anthropic"),
	}, nil
}

// GenerateText sends prompt as a single user message and returns the first
// text block of the reply.
func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	temperature := c.temperature

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			c.logger.Info("LLM request completed",
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
				zap.Duration("elapsed", time.Since(start)))
			return *block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

func (c *AnthropicClient) parseError(err error) error {
	classified := ClassifyError(err)
	if classified.Model == "" {
		classified.Model = c.model
	}
	if classified.Endpoint == "" {
		classified.Endpoint = c.endpoint
	}
	return classified
}
