// Package logger builds the zap loggers used across the relay server.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev/docker use colored console output.
// The returned AtomicLevel can be adjusted at runtime (config hot reload).
func NewLogger(env, level string) (*zap.Logger, zap.AtomicLevel, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unknown environment %q for logger", env)
	}

	if level != "" {
		if err := SetLevel(cfg.Level, level); err != nil {
			return nil, zap.AtomicLevel{}, err
		}
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return l, cfg.Level, nil
}

// SetLevel parses level and applies it to al.
func SetLevel(al zap.AtomicLevel, level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	al.SetLevel(lvl)
	return nil
}
