package llm

import (
	"context"
	"sync"
)

// MockTextGenerator is a configurable TextGenerator for tests.
// Set GenerateTextFunc to control behavior; Calls and Prompts record usage.
type MockTextGenerator struct {
	// GenerateTextFunc is called for each GenerateText. If nil, an empty
	// string and nil error are returned.
	GenerateTextFunc func(ctx context.Context, prompt string) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu      sync.Mutex
	Calls   int
	Prompts []string
}

// NewMockTextGenerator creates a mock with sensible defaults.
func NewMockTextGenerator() *MockTextGenerator {
	return &MockTextGenerator{Model: "mock-model"}
}

// NewMockTextGeneratorWithResponses returns a mock that replies with
// responses in order and repeats the last one once they run out.
func NewMockTextGeneratorWithResponses(responses ...string) *MockTextGenerator {
	m := NewMockTextGenerator()
	i := 0
	m.GenerateTextFunc = func(ctx context.Context, prompt string) (string, error) {
		if len(responses) == 0 {
			return "", nil
		}
		r := responses[min(i, len(responses)-1)]
		i++
		return r, nil
	}
	return m
}

// GenerateText implements TextGenerator.
func (m *MockTextGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Prompts = append(m.Prompts, prompt)

	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, prompt)
	}
	return "", nil
}

// GetModel implements TextGenerator.
func (m *MockTextGenerator) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// CallCount returns the number of GenerateText calls.
func (m *MockTextGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

var _ TextGenerator = (*MockTextGenerator)(nil)
