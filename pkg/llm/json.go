package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> blocks some models emit before
// their answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// StripThinking removes a leading <think> block from a model response.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// ExtractJSON returns the first balanced JSON object or array in a model
// response, ignoring surrounding prose, code fences and <think> blocks.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned[objStart:], '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned[arrStart:], '[', ']'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	// An object may still follow an unparseable bracketed fragment.
	if objStart >= 0 && arrStart >= 0 && arrStart < objStart {
		if jsonStr, ok := extractBalancedJSON(cleaned[objStart:], '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON returns the prefix of s that closes the bracket s
// starts with. Brackets inside string literals are ignored.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
