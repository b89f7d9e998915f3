package utils

import (
	"context"
	"errors"
	"log/slog"
)

// MultiLogHandler fans records out to several handlers, each applying its own level.
type MultiLogHandler struct {
	handlers []slog.Handler
}

// NewMultiLogHandler skips nil handlers so optional sinks can be passed as is.
func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	h := &MultiLogHandler{handlers: make([]slog.Handler, 0, len(handlers))}
	for _, handler := range handlers {
		if handler != nil {
			h.handlers = append(h.handlers, handler)
		}
	}
	return h
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiLogHandler{handlers: handlers}
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &MultiLogHandler{handlers: handlers}
}
