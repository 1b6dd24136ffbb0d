// Package logging provides a thin global wrapper around zap.Logger, kept
// nearly verbatim from the teacher's own internal/logging package.
//
// Unlike the teacher's project-wide singleton, this package is not meant to
// be the primary logging path: each nacos Client owns its own *zap.Logger
// (see pkg/nacos.ClientConfig.Logger) so that multiple independent clients
// in one process can log to different sinks. Logger()/Set() exist so that
// a Client constructed without an explicit logger, and cmd/nacos-probe's
// process-wide CLI logging, still have somewhere sane to log.
package logging

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var l atomic.Pointer[zap.Logger]

// Set installs the given zap.Logger as the global logger. A nil logger
// silently downgrades to zap.NewNop().
func Set(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.Store(logger)
}

// Logger returns the globally registered *zap.Logger, installing a
// zap.NewNop() the first time it's called if nothing has been set yet. It
// never returns nil.
func Logger() *zap.Logger {
	if logger := l.Load(); logger != nil {
		return logger
	}
	nop := zap.NewNop()
	l.Store(nop)
	return nop
}

// Default is an alias for Logger, for callers that prefer the "give me a
// fallback" framing over the "give me the global" framing.
func Default() *zap.Logger { return Logger() }

// Sugar is shorthand for Logger().Sugar().
func Sugar() *zap.SugaredLogger { return Logger().Sugar() }

// Initialised reports whether a non-nop logger has been set.
func Initialised() bool {
	logger := l.Load()
	return logger != nil && logger.Core() != zapcore.NewNopCore()
}
