package scrim

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/effect"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/scrim/internal/resource"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for scrim and the capture, effect,
// gpucore and resource packages. By default nothing is logged. Pass nil to
// restore the silent default.
//
// Log levels used by scrim:
//   - [slog.LevelDebug]: per-frame detail (state trace, staging generation)
//   - [slog.LevelInfo]: lifecycle (source started, pause toggled)
//   - [slog.LevelWarn]: recoverable problems (lost capture session,
//     allocation retries, excluded effects)
//
// Example:
//
//	scrim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	capture.SetLogger(l)
	effect.SetLogger(l)
	gpucore.SetLogger(l)
	resource.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
