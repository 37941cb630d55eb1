package logger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

const formatPretty logFormat = "pretty"

// prettyHandler renders colored console lines for local development and
// copies the correlation fields carried in ctx onto every record.
type prettyHandler struct {
	next slog.Handler
}

func newPrettyHandler(w io.Writer, level slog.Leveler, noColor bool) slog.Handler {
	return &prettyHandler{
		next: tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    noColor,
		}),
	}
}

func (h *prettyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *prettyHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	fields := make(map[string]any, 4)
	addContextFields(ctx, fields)
	if rid, ok := fields["rid"].(string); ok {
		fields["rid"] = CompactRID(rid)
	}
	for _, key := range defaultKeyOrder {
		if v, ok := fields[key]; ok {
			r.AddAttrs(slog.Any(key, v))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &prettyHandler{next: h.next.WithAttrs(attrs)}
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	return &prettyHandler{next: h.next.WithGroup(name)}
}
