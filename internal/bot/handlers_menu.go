package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/service"

	tele "gopkg.in/telebot.v4"
)

// Start handles /start, with or without a share_<ref> deep-link payload.
func (b *Bot) Start(c tele.Context) error {
	userID := senderID(c)
	b.transition(c, userID, state.StateIdle)

	payload := ""
	if msg := c.Message(); msg != nil {
		payload = strings.TrimSpace(msg.Payload)
	}
	if strings.HasPrefix(payload, service.SharePrefix) {
		return b.openShared(c, userID, payload)
	}
	return b.greet(c)
}

func (b *Bot) greet(c tele.Context) error {
	first := ""
	if u := c.Sender(); u != nil {
		first = u.FirstName
	}
	return tghelpers.SendMD(c, greetingText(first), menuKeyboard())
}

func (b *Bot) openShared(c tele.Context, viewerID int64, payload string) error {
	ctx := tghelpers.BuildContext(c)
	ownerID, err := b.shop.OpenShare(ctx, viewerID, payload)
	if errors.Is(err, service.ErrInvalidShareRef) {
		if err := tghelpers.SendMD(c, textInvalidLink); err != nil {
			return err
		}
		// Owner-id links predate tokens: fall through to the normal greeting.
		if b.shop.ShareMode() == service.ShareModeOwnerID {
			return b.greet(c)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("open shared list: %w", err)
	}
	if ownerID == viewerID {
		return b.showOwn(c, viewerID)
	}
	if err := b.showShared(c, viewerID, ownerID); err != nil {
		return fmt.Errorf("view shared list: %w", err)
	}
	return nil
}

// Menu handles /cancel and every "back to menu" button: the pending add is
// dropped and the main menu shown.
func (b *Bot) Menu(c tele.Context) error {
	b.transition(c, senderID(c), state.StateIdle)
	return b.render(c, textMenu, menuKeyboard())
}

// Help lists the commands.
func (b *Bot) Help(c tele.Context) error {
	b.transition(c, senderID(c), state.StateIdle)
	return tghelpers.SendMD(c, textHelp, menuKeyboard())
}

// ClearList removes every item of the sender's list. History stays.
func (b *Bot) ClearList(c tele.Context) error {
	userID := senderID(c)
	b.transition(c, userID, state.StateIdle)

	n, err := b.shop.Clear(tghelpers.BuildContext(c), userID)
	if err != nil {
		return fmt.Errorf("clear list: %w", err)
	}
	logger.Debug(tghelpers.BuildContext(c), "bot.flow", "list.cleared",
		slog.Int64("user_id", userID),
		slog.Int64("removed", n),
	)
	return b.render(c, textCleared+"\n\n"+textMenu, menuKeyboard())
}

// UnknownText answers plain text outside of the add flow.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, textUnknown, menuKeyboard())
	}
}

// UnknownCallback answers buttons from keyboards the bot no longer knows.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.Respond(c, "This button is no longer supported")
	}
}
