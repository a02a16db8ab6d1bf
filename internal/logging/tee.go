package logging

import (
	"context"
	"log/slog"
)

// teeHandler copies every record into a RingBuffer before handing it to
// the next handler, which still applies its own level.
type teeHandler struct {
	next  slog.Handler
	rb    *RingBuffer
	attrs []slog.Attr
}

func (h *teeHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Timestamp: r.Time,
		Level:     LevelName(r.Level),
		Message:   r.Message,
	}
	collect := func(a slog.Attr) {
		if a.Key == "component" {
			entry.Source = a.Value.String()
			return
		}
		if entry.Extra == nil {
			entry.Extra = make(map[string]string)
		}
		entry.Extra[a.Key] = a.Value.String()
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})
	h.rb.Add(entry)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &teeHandler{next: h.next.WithAttrs(attrs), rb: h.rb, attrs: merged}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: h.next.WithGroup(name), rb: h.rb, attrs: h.attrs}
}
