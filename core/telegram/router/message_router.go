package router

import (
	"time"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for an FSM manager.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the handler for plain text: an active conversation wins,
// then command aliases, then the registry and option fallbacks.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if fsmMgr != nil && c.Sender() != nil && fsmMgr.InProgress(c.Sender().ID) {
			return handled(c, "fsm", start, fsmMgr.ManagerHandler)
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				return handled(c, normalizeHandlerName(key), start, cmd.Handler)
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handled(c, "fallback", start, fb)
			}
		}

		if opts.UnknownText != nil {
			return handled(c, "unknown_text", start, opts.UnknownText)
		}

		skipped(c, "unknown_text", start)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}
