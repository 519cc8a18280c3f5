package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// FileName is the run log written to the output directory.
const FileName = "traverser.log"

// FanoutHandler sends each record to every handler that accepts its level.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a handler over hs. Nil handlers are skipped.
func NewFanoutHandler(hs ...slog.Handler) *FanoutHandler {
	kept := make([]slog.Handler, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &FanoutHandler{handlers: kept}
}

// Enabled reports whether any handler accepts level.
func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of r to each handler that accepts its level.
func (f *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs applies attrs to every handler.
func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: next}
}

// WithGroup applies the group to every handler.
func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &FanoutHandler{handlers: next}
}

// NewRunLogger builds the logger of a traversal run. Console output follows
// the verbose level; file output, when file is non-nil, always records Info
// and above so the run log keeps every visit. Both sides are sanitized.
func NewRunLogger(console, file io.Writer, verbose, jsonFormat bool) *slog.Logger {
	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if jsonFormat {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	var hs []slog.Handler
	if console != nil {
		hs = append(hs, newHandler(console, consoleLevel(verbose)))
	}
	if file != nil {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		hs = append(hs, newHandler(file, level))
	}
	return slog.New(NewSecureHandler(NewFanoutHandler(hs...)))
}
