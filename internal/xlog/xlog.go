// Package xlog provides the small structured logger the CRDT core uses for
// diagnostic-level events: ops dropped because their target or anchor is
// not ready, which is recoverable but worth surfacing to an operator.
package xlog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Set installs the package-wide logger. Libraries embedding this module call
// this once at startup; until they do, logging is a no-op.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// SetLevel builds and installs a development-mode logger at the given level,
// mirroring nstlog's SetLogger(showCallerInfo, logLevel) convenience shape.
func SetLevel(level zapcore.Level) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// L returns the current package-wide logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debugf and friends proxy to the Sugar logger, matching the call sites'
// preference for printf-style diagnostics over structured fields.
func Debugf(format string, args ...interface{}) { L().Sugar().Debugf(format, args...) }
func Warnf(format string, args ...interface{})  { L().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().Sugar().Errorf(format, args...) }
