package gcompute

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gcompute/native"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for gcompute and package native.
// By default, gcompute produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by gcompute:
//   - [slog.LevelDebug]: kernel builds, stream submissions, buffer sizes
//   - [slog.LevelInfo]: engine initialization, adapter selection
//   - [slog.LevelWarn]: kernels left out of a batch, release problems
//
// Example:
//
//	gcompute.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	native.SetLogger(l)
}

// Logger returns the current logger used by gcompute.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// slogger is the internal shorthand for Logger.
func slogger() *slog.Logger { return loggerPtr.Load() }
