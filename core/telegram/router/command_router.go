package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		inner := def.Handler
		h := func(c tele.Context) error {
			return handled(c, name, time.Now(), inner)
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
