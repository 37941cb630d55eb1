package helpers

import (
	"context"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext caches ctx on c so later helpers of the same update reuse it.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// ContextFrom returns the context cached on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update's context, creating it on first use with
// the rid and update, user and chat ids taken from c.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}

	m := logger.Meta{UpdateID: c.Update().ID}
	if u := c.Sender(); u != nil {
		m.UserID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		m.ChatID = ch.ID
	}
	m.RID, _ = c.Get("rid").(string)
	if m.RID == "" {
		m.RID = logger.BuildRID(m.UpdateID, m.ChatID, m.UserID)
	}

	ctx := logger.WithLogger(logger.WithMeta(context.Background(), m), logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update's context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	return amend(c, func(ctx context.Context) context.Context {
		return logger.WithHandler(ctx, handler)
	})
}

// ForOwner tags the update's context with the owner of the list the update
// works on, so transport and sender lines of a shared list name its owner.
func ForOwner(c tele.Context, ownerID int64) context.Context {
	return amend(c, func(ctx context.Context) context.Context {
		return logger.WithOwner(ctx, ownerID)
	})
}

func amend(c tele.Context, fn func(context.Context) context.Context) context.Context {
	ctx := fn(BuildContext(c))
	StoreContext(c, ctx)
	return ctx
}
