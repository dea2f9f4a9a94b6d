package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorType indicates which part of the provider setup caused the error.
type ErrorType string

const (
	ErrorTypeNone       ErrorType = ""
	ErrorTypeCredential ErrorType = "credential"
	ErrorTypeInit       ErrorType = "init"
	ErrorTypeEndpoint   ErrorType = "endpoint"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeModel      ErrorType = "model"
	ErrorTypeUnknown    ErrorType = "unknown"
)

var (
	// ErrMissingCredential is returned when no API key is configured for a
	// provider that requires one.
	ErrMissingCredential = errors.New("LLM API key not configured")

	// ErrNotInitialized is returned by generators whose construction failed
	// for a reason other than a missing credential.
	ErrNotInitialized = errors.New("LLM not initialized")
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known; only the host is printed
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, ErrMissingCredential) {
		return NewError(ErrorTypeCredential, "credential missing", false, err)
	}
	if errors.Is(err, ErrNotInitialized) {
		return NewError(ErrorTypeInit, "initialization failed", false, err)
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classified := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key") ||
		strings.Contains(lower, "authentication_error"):
		return classified(ErrorTypeAuth, "authentication failed", false)

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return classified(ErrorTypeModel, "model not found", false)

	case strings.Contains(errStr, "404"):
		return classified(ErrorTypeEndpoint, "endpoint not found", false)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classified(ErrorTypeEndpoint, "connection failed", true)

	case strings.Contains(lower, "context canceled"):
		return classified(ErrorTypeEndpoint, "request canceled", false)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classified(ErrorTypeEndpoint, "request timeout", true)

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit"):
		return classified(ErrorTypeUnknown, "rate limited", true)

	case strings.Contains(errStr, "529") || strings.Contains(lower, "overloaded"):
		return classified(ErrorTypeEndpoint, "provider overloaded", true)

	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return classified(ErrorTypeEndpoint, "server error", true)
	}

	return classified(ErrorTypeUnknown, "llm error", false)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	return ClassifyError(err).Type
}
