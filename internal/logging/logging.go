// Package logging wraps a process-wide zap logger.
package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.SugaredLogger]

func init() {
	current.Store(zap.NewNop().Sugar())
}

// Options configures the global logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// Init replaces the global logger. Until it is called, logging is a no-op.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Set(l)
	return nil
}

// Set installs l as the global logger.
func Set(l *zap.Logger) {
	current.Store(l.Sugar())
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger { return current.Load() }

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current.Load().With(keysAndValues...)
}

func Debugf(format string, args ...any) { current.Load().Debugf(format, args...) }
func Infof(format string, args ...any)  { current.Load().Infof(format, args...) }
func Warnf(format string, args ...any)  { current.Load().Warnf(format, args...) }
func Errorf(format string, args ...any) { current.Load().Errorf(format, args...) }

// Sync flushes buffered entries.
func Sync() {
	_ = current.Load().Sync()
}
