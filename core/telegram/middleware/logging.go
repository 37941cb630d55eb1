package middleware

import (
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const ridKey = "rid"

// LoggerMiddleware gives the update its rid and logs one sampled
// update.received line. The middleware is mounted both globally and on each
// route; the rid already set on c makes the inner copies pass through.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if rid, _ := c.Get(ridKey).(string); rid != "" {
			return next(c)
		}
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}
		c.Set(ridKey, logger.BuildRID(c.Update().ID, chatID, userID))

		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receipt(c)...)
		}
		return next(c)
	}
}

// receipt describes who sent the update and what it carries. Ids and rid
// come from the update's context.
func receipt(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case c.Callback() != nil:
		attrs = append(attrs,
			slog.String("cb_key", callbacks.CallbackKey(c)),
			slog.String("payload", callbacks.CallbackPayload(c)),
		)
	case c.Message() != nil:
		attrs = append(attrs, slog.String("text", c.Text()))
	}
	return attrs
}
