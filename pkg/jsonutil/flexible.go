// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleStringSlice converts a json.RawMessage to a list of strings. A
// single scalar becomes a one-element list; null, empty strings and empty
// arrays yield nil.
func FlexibleStringSlice(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := strings.TrimSpace(FlexibleStringValue(raw)); s != "" {
			return []string{s}
		}
		return nil
	}

	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(FlexibleStringValue(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FlexibleFloat converts a json.RawMessage holding a number or a numeric
// string to a float64. ok is false for anything else.
func FlexibleFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// FlexibleBool converts a json.RawMessage holding a boolean, "true"/"yes"
// style string or 0/1 number to a bool. ok is false for anything else.
func FlexibleBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return boolVal, true
	}

	switch strings.ToLower(strings.TrimSpace(FlexibleStringValue(raw))) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}
