package bot

import (
	"errors"
	"fmt"

	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/service"

	tele "gopkg.in/telebot.v4"
)

// Share shows the deep link that opens the sender's list.
func (b *Bot) Share(c tele.Context) error {
	userID := senderID(c)
	b.transition(c, userID, state.StateIdle)

	ref, err := b.shop.ShareRef(tghelpers.BuildContext(c), userID)
	if err != nil {
		return fmt.Errorf("share ref: %w", err)
	}
	rotatable := b.shop.ShareMode() == service.ShareModeToken
	return b.render(c, shareText(b.shareLink(ref), rotatable), shareKeyboard(rotatable))
}

// RotateShare replaces the share token; the old link stops working.
func (b *Bot) RotateShare(c tele.Context) error {
	userID := senderID(c)
	ref, err := b.shop.RotateShare(tghelpers.BuildContext(c), userID)
	if errors.Is(err, service.ErrRotateUnsupported) {
		return tghelpers.Respond(c, "Links cannot be replaced in this mode")
	}
	if err != nil {
		return fmt.Errorf("rotate share: %w", err)
	}
	_ = tghelpers.Respond(c, textRotated)
	return b.render(c, shareText(b.shareLink(ref), true), shareKeyboard(true))
}

// shareLink builds https://t.me/<bot>?start=share_<ref>, or the bare command
// while the bot username is unknown.
func (b *Bot) shareLink(ref string) string {
	payload := service.SharePrefix + ref
	if name := b.username(); name != "" {
		return fmt.Sprintf("https://t.me/%s?start=%s", name, payload)
	}
	return "/start " + payload
}
