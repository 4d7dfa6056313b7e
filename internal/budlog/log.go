// Package budlog provides the process-wide logger. Every component gets a
// named child of the default logger rather than constructing its own.
package budlog

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	base, _ = newDefault()
)

// newDefault builds the production logger: JSON to stderr at info level,
// unless BUD_DEV is set, in which case it switches to a human-readable
// console encoder at debug level.
func newDefault() (*zap.Logger, error) {
	var enc zapcore.Encoder
	level := zapcore.InfoLevel
	if os.Getenv("BUD_DEV") != "" {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zapcore.DebugLevel
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// Default returns the current process-wide logger.
func Default() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named returns a child of the default logger tagged with name, the way
// each component (master, worker, sni, ocsp, ...) identifies its log lines.
func Named(name string) *zap.Logger {
	return Default().Named(name)
}

// SetDefault replaces the process-wide logger. Loggers already returned by
// Default or Named keep the one they were built from.
func SetDefault(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Sampled wraps core with a rate limiter, for log sites that fire once per
// connection and could otherwise flood output (Protocol-kind errors, per
// spec's error-handling policy).
func Sampled(l *zap.Logger) *zap.Logger {
	return l.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, time.Second, 5, 20)
	}))
}
