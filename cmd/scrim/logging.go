package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/gogpu/scrim"
	"github.com/gogpu/scrim/backend/native"
	"github.com/gogpu/scrim/internal/control"
	"github.com/gogpu/scrim/internal/x11win"
)

// newHandler returns a text handler for terminals and a JSON handler for
// everything else.
func newHandler(w io.Writer, tty bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if tty {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)) //nolint:gosec // fd fits in int
}

// setLoggers installs l in every package that logs.
func setLoggers(l *slog.Logger) {
	scrim.SetLogger(l)
	native.SetLogger(l)
	control.SetLogger(l)
	x11win.SetLogger(l)
}
