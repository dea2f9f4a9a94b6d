package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// MaxPromptLogLength is the maximum length of user text or model output to log
	MaxPromptLogLength = 120
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match JWT tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Pattern to match potential API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match provider secret keys (sk-..., sk-ant-...)
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	// Replace password values
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)

	// Replace user:pass@host format
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data
// Use this before logging any error from database operations
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Remove potential passwords
	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)

	// Remove JWT tokens
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)

	// Remove API keys
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)

	// Remove provider keys
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)

	// Remove connection string details
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeQuery truncates and sanitizes a SQL query for logging
// Prevents logging very long queries and removes sensitive patterns
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	// Collapse whitespace so multi-line SQL logs on one line, then truncate
	sanitized := strings.TrimSpace(whitespacePattern.ReplaceAllString(query, " "))
	if len(sanitized) > MaxQueryLogLength {
		sanitized = sanitized[:MaxQueryLogLength] + "..."
	}

	// Remove potential sensitive data patterns
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)

	return sanitized
}

// SanitizeText truncates free text (user questions, model output) for logging.
func SanitizeText(text string) string {
	collapsed := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	return TruncateString(secretKeyPattern.ReplaceAllString(collapsed, RedactedText), MaxPromptLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
