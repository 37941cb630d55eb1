package helpers

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	dispatcherKey = "tg_dispatcher"
	respondedKey  = "cb_responded"
)

// DispatcherMiddleware exposes d to the helpers of every update.
func DispatcherMiddleware(d *sender.Dispatcher) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if d != nil {
				c.Set(dispatcherKey, d)
			}
			return next(c)
		}
	}
}

func dispatcherFrom(c tele.Context) *sender.Dispatcher {
	d, _ := c.Get(dispatcherKey).(*sender.Dispatcher)
	return d
}

// sendAsync runs the call on the chat's dispatcher worker, or inline when the
// update carries no dispatcher. Enqueue already waited for room in the chat's
// queue; if it is still full, or the dispatcher is shutting down, the call
// runs inline and may overtake jobs still queued for the same chat. That is
// the only case where per-chat order is not kept.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := dispatcherFrom(c)
	if disp == nil {
		return run()
	}

	var key int64
	if chat := c.Chat(); chat != nil {
		key = chat.ID
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, key, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendMD sends a message with Markdown parse mode and optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm}
	return SendText(c, text, opts)
}

// EditOrSendMD tries to edit the message (Markdown) or sends a new one if edit fails.
// It goes through the same worker as SendMD so a chat never sees them reordered.
func EditOrSendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm}
	return sendAsync(c, "edit.text", "editMessageText", func() error {
		return c.EditOrSend(text, opts)
	})
}

// Respond answers the pending callback query with an optional toast text.
// Only the first call per update reaches Telegram.
func Respond(c tele.Context, text string) error {
	if c.Callback() == nil || Responded(c) {
		return nil
	}
	c.Set(respondedKey, true)
	if text == "" {
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: text})
}

// Responded reports whether the current callback was already answered.
func Responded(c tele.Context) bool {
	v, _ := c.Get(respondedKey).(bool)
	return v
}
