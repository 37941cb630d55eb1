package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error log line carrying the
// update's rid, user and list owner. A pending callback is still answered so
// the button stops spinning.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			_ = tghelpers.Respond(c, "")
			err = nil
		}()
		return next(c)
	}
}
