// Package logging builds the zap loggers used across stubprobe.
// Each component logs through a named child of the root logger so that
// output can be filtered by category.
package logging

import (
	"fmt"
	"strings"

	"stubprobe/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // CLI startup, config loading
	CategoryRegistry Category = "registry" // Registry loading and validation
	CategoryProbe    Category = "probe"    // Sentinel probes
	CategoryBrowser  Category = "browser"  // Chrome lifecycle, sessions
	CategoryClassify Category = "classify" // Verdicts and override decisions
	CategoryOrganize Category = "organize" // File moves
	CategoryGuard    Category = "guard"    // Run-time skip guard
	CategoryHistory  Category = "history"  // Run history store
	CategoryMetrics  Category = "metrics"  // Prometheus textfile export
	CategoryWatch    Category = "watch"    // Registry watcher
)

// ParseLevel maps a config level string to a zap level. Unknown values are info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the root logger. verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	// Status lines own stdout.
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	level := ParseLevel(cfg.Level)
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// For returns the category logger derived from base. A nil base yields a no-op logger.
func For(base *zap.Logger, cat Category) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.Named(string(cat))
}
