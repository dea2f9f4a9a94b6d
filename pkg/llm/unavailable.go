package llm

import (
	"context"
	"errors"
	"fmt"
)

// Unavailable stands in for a generator that could not be constructed.
// Every call returns the construction error so the pipeline can report why
// no text could be generated.
type Unavailable struct {
	model string
	err   error
}

// NewUnavailable wraps a construction error. Errors that are not already
// ErrMissingCredential are marked with ErrNotInitialized.
func NewUnavailable(model string, err error) *Unavailable {
	if err == nil {
		err = ErrNotInitialized
	}
	if !errors.Is(err, ErrMissingCredential) && !errors.Is(err, ErrNotInitialized) {
		err = fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	return &Unavailable{model: model, err: err}
}

// GenerateText always fails with the construction error.
func (u *Unavailable) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", u.err
}

// GetModel returns the model that was requested.
func (u *Unavailable) GetModel() string {
	return u.model
}

// Err returns the construction error.
func (u *Unavailable) Err() error {
	return u.err
}
