// Package obslog sets up the structured logger every other package takes
// as a *slog.Logger dependency. There is exactly one place JSON-vs-text
// output and level filtering are decided; everything downstream just calls
// logger.With(...) to scope fields.
package obslog

import (
	"io"
	"log/slog"
	"os"
)

// Options configures New.
type Options struct {
	Writer io.Writer // defaults to os.Stderr
	JSON   bool
	Level  slog.Level
	Debug  bool
}

// New builds the process-wide logger. With Options zero-valued it writes
// text-format Info-and-above logs to stderr.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything, used as the default when
// a component isn't given an explicit logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithQuery scopes logger with the per-request fields every query-path log
// line carries.
func WithQuery(logger *slog.Logger, tenantID, traceID string) *slog.Logger {
	return logger.With("tenant_id", tenantID, "trace_id", traceID)
}

// WithSource further scopes a query-scoped logger to one source/table pair.
func WithSource(logger *slog.Logger, source, table string) *slog.Logger {
	return logger.With("source", source, "table", table)
}
