package middleware

import (
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// AllowListOptions restricts the bot to a fixed set of Telegram user IDs.
// An empty list lets everyone through.
type AllowListOptions struct {
	Allowed []int64
	// OnDrop observes every rejected update; it must not reply to the user.
	OnDrop func(c tele.Context)
}

// AllowListMiddleware silently drops updates from senders outside the list.
func AllowListMiddleware(opts AllowListOptions) tele.MiddlewareFunc {
	allowed := make(map[int64]struct{}, len(opts.Allowed))
	for _, id := range opts.Allowed {
		allowed[id] = struct{}{}
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if len(allowed) == 0 {
			return next
		}
		return func(c tele.Context) error {
			user := c.Sender()
			if user != nil {
				if _, ok := allowed[user.ID]; ok {
					return next(c)
				}
			}

			attrs := []any{
				slog.String("event", "tg.access"),
				slog.String("outcome", "denied"),
				slog.Int("update_id", c.Update().ID),
			}
			if user != nil {
				attrs = append(attrs, slog.Int64("user_id", user.ID))
			}
			logger.TG.Debug("access denied", attrs...)
			if opts.OnDrop != nil {
				opts.OnDrop(c)
			}
			return nil
		}
	}
}
