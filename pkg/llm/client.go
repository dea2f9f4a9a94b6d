package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client generates text with an OpenAI-compatible chat completion endpoint.
type Client struct {
	client      *openai.Client
	endpoint    string
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// Config holds configuration for creating a text generator.
type Config struct {
	Provider    string  // "anthropic" or "openai"
	Endpoint    string  // Base URL, e.g. "https://api.openai.com/v1"; empty uses the provider default
	Model       string  // Model name, e.g. "gpt-4o"
	APIKey      string  // Required for hosted providers
	Temperature float64 // Sampling temperature, 0.7 when unset
	MaxTokens   int     // Completion token cap, 1000 when unset
}

func (c *Config) temperature() float64 {
	if c.Temperature <= 0 {
		return 0.7
	}
	return c.Temperature
}

func (c *Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 1000
	}
	return c.MaxTokens
}

// NewClient creates an OpenAI-compatible client.
// A key is only optional when a custom endpoint is configured.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("openai client: %w", ErrMissingCredential)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    clientConfig.BaseURL,
		model:       cfg.Model,
		temperature: float32(cfg.temperature()),
		maxTokens:   cfg.maxTokens(),
		logger:      logger.Named("llm"),
	}, nil
}

// GenerateText sends prompt as a single user message and returns the
// content of the first choice.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) parseError(err error) error {
	classified := ClassifyError(err)
	if classified.Model == "" {
		classified.Model = c.model
	}
	if classified.Endpoint == "" {
		classified.Endpoint = c.endpoint
	}
	return classified
}
