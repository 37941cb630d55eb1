package logger

import (
	"context"
	"log/slog"
)

// Meta is the correlation data attached to an update. Every line logged with
// a context carrying Meta inherits its non-zero fields.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
	// OwnerID is the owner of the shopping list being read or changed. It
	// differs from UserID when a viewer works on a shared list.
	OwnerID int64
}

type (
	metaKey   struct{}
	loggerKey struct{}
)

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithMeta replaces the update metadata carried by ctx.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(orBackground(ctx), metaKey{}, m)
}

// MetaFrom returns the update metadata of ctx, zero when none was attached.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

func updateMeta(ctx context.Context, fn func(*Meta)) context.Context {
	m := MetaFrom(ctx)
	fn(&m)
	return WithMeta(ctx, m)
}

// WithRID sets the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return updateMeta(ctx, func(m *Meta) { m.RID = rid })
}

// WithUpdateMeta sets the update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return updateMeta(ctx, func(m *Meta) {
		m.UpdateID = updateID
		m.UserID = userID
		m.ChatID = chatID
	})
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return orBackground(ctx)
	}
	return updateMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// WithOwner marks the list owner the following log lines are about.
func WithOwner(ctx context.Context, ownerID int64) context.Context {
	return updateMeta(ctx, func(m *Meta) { m.OwnerID = ownerID })
}

// WithLogger stores log in ctx for the layers below.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = orBackground(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored in ctx or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// fill copies the non-zero fields of m into fields without overriding
// values set explicitly on the record.
func (m Meta) fill(fields map[string]any) {
	put := func(key string, v any, zero bool) {
		if zero {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}
	put("rid", m.RID, m.RID == "")
	put("update_id", m.UpdateID, m.UpdateID == 0)
	put("user_id", m.UserID, m.UserID == 0)
	put("chat_id", m.ChatID, m.ChatID == 0)
	put("handler", m.Handler, m.Handler == "")
	put("owner_id", m.OwnerID, m.OwnerID == 0)
}
