// Package llm provides the text-generation clients used to extract intents,
// write SQL and compose answers.
package llm

import (
	"context"
)

// TextGenerator turns a prompt into model text.
//
// It is the single blocking boundary of the query pipeline. Implementations
// are synchronous and stateless per call so they can be shared between
// requests and replaced by MockTextGenerator in tests.
type TextGenerator interface {
	// GenerateText returns the model's completion for prompt.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure the concrete generators implement TextGenerator at compile time.
var (
	_ TextGenerator = (*AnthropicClient)(nil)
	_ TextGenerator = (*Client)(nil)
	_ TextGenerator = (*Unavailable)(nil)
	_ TextGenerator = (*ResilientGenerator)(nil)
)
