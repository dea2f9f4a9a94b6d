// Package logging builds the process logger and sanitizes values before
// they are logged.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for env. "local" and "dev" get a human-readable
// development logger; everything else gets JSON output. An empty level
// keeps the preset's default. Logs are written to stderr so stdout stays
// free for command output and the MCP stdio transport.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "local", "dev", "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
