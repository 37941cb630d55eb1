package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/service"

	tele "gopkg.in/telebot.v4"
)

// ShowList renders the sender's own list.
func (b *Bot) ShowList(c tele.Context) error {
	userID := senderID(c)
	b.transition(c, userID, state.StateIdle)
	return b.showOwn(c, userID)
}

func (b *Bot) showOwn(c tele.Context, userID int64) error {
	items, err := b.shop.List(tghelpers.BuildContext(c), userID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	return b.render(c, ownListText(items), listKeyboard(items, userID, true))
}

func (b *Bot) showShared(c tele.Context, viewerID, ownerID int64) error {
	ctx := tghelpers.ForOwner(c, ownerID)
	items, err := b.shop.ViewList(ctx, viewerID, ownerID)
	if err != nil {
		return err
	}
	return b.render(c, sharedListText(b.displayName(c, ownerID), ownerID, items), listKeyboard(items, ownerID, false))
}

// RefreshShared re-renders a list opened through a share link.
func (b *Bot) RefreshShared(c tele.Context) error {
	ownerID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.Respond(c, textPickExpired)
	}
	viewerID := senderID(c)
	if ownerID == viewerID {
		return b.showOwn(c, viewerID)
	}
	err = b.showShared(c, viewerID, ownerID)
	if errors.Is(err, service.ErrForbidden) {
		return tghelpers.Respond(c, textForbidden)
	}
	if err != nil {
		return fmt.Errorf("view shared list: %w", err)
	}
	return nil
}

// DeleteItem removes the tapped item and re-renders the list it came from.
// A repeated tap on an item that is already gone only refreshes the list.
func (b *Bot) DeleteItem(c tele.Context) error {
	itemID, ownerID, err := callbacks.PayloadTwoInt64(c, "|")
	if err != nil {
		return tghelpers.Respond(c, textPickExpired)
	}
	viewerID := senderID(c)
	ctx := tghelpers.ForOwner(c, ownerID)

	removed, err := b.shop.Delete(ctx, viewerID, ownerID, itemID)
	if errors.Is(err, service.ErrForbidden) {
		return tghelpers.Respond(c, textForbidden)
	}
	if err != nil {
		return fmt.Errorf("delete item %d: %w", itemID, err)
	}
	if removed {
		_ = tghelpers.Respond(c, textDeleted)
	}

	if ownerID == viewerID {
		return b.showOwn(c, viewerID)
	}
	if err := b.showShared(c, viewerID, ownerID); err != nil {
		return fmt.Errorf("view shared list: %w", err)
	}
	return nil
}

// displayName falls back to the numeric id when the owner cannot be looked up.
func (b *Bot) displayName(c tele.Context, userID int64) string {
	fallback := "user " + strconv.FormatInt(userID, 10)
	if b.names == nil {
		return fallback
	}
	ctx := tghelpers.BuildContext(c)
	name, err := b.names.DisplayName(ctx, userID)
	if err != nil || name == "" {
		if err != nil {
			logger.Debug(ctx, "bot.flow", "owner.name_unresolved", slog.String("err", err.Error()))
		}
		return fallback
	}
	return name
}
