package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Handlers may answer the query themselves via helpers.Respond; otherwise it
// is answered with an empty response once the handler returns.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		defer func() { _ = tghelpers.Respond(c, "") }()

		key := callbacks.CallbackKey(c)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			if fallback == nil {
				fallback = func(tele.Context) error { return nil }
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return handled(c, name, start, fallback, extras...)
		}
		return handled(c, name, start, cbHandler, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
