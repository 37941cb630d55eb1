// Package bot drives the shopping list conversation over Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/models"

	tele "gopkg.in/telebot.v4"
)

// StateAwaitingProduct is active between "add" and the product text or pick.
const StateAwaitingProduct state.State = "awaiting_product_text"

const tempSuggestions = "suggestions"

// Shopping is the list service used by the handlers.
type Shopping interface {
	AddProduct(ctx context.Context, ownerID int64, raw string) (string, error)
	AddSuggestion(ctx context.Context, ownerID int64, name string) error
	List(ctx context.Context, ownerID int64) ([]models.Item, error)
	ViewList(ctx context.Context, viewerID, ownerID int64) ([]models.Item, error)
	Delete(ctx context.Context, viewerID, ownerID, itemID int64) (bool, error)
	Clear(ctx context.Context, ownerID int64) (int64, error)
	Suggestions(ctx context.Context, ownerID int64) ([]string, error)
	ShareRef(ctx context.Context, ownerID int64) (string, error)
	RotateShare(ctx context.Context, ownerID int64) (string, error)
	OpenShare(ctx context.Context, viewerID int64, payload string) (int64, error)
	ShareMode() string
}

// NameResolver looks up a display name for a Telegram user.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Options wire the controller.
type Options struct {
	Shopping Shopping
	FSM      state.Manager
	Names    NameResolver
	// Username returns the bot's @username for share links; it is known
	// only after the bot connected.
	Username func() string
}

// Bot holds the handlers of the shopping list conversation.
type Bot struct {
	shop     Shopping
	fsm      state.Manager
	names    NameResolver
	username func() string

	// picks numbers every rendered suggestions keyboard.
	picks atomic.Uint64
}

// New builds the controller.
func New(opts Options) (*Bot, error) {
	if opts.Shopping == nil {
		return nil, errors.New("bot: nil shopping service")
	}
	if opts.FSM == nil {
		opts.FSM = state.NewMemoryManager()
	}
	if opts.Username == nil {
		opts.Username = func() string { return "" }
	}
	return &Bot{
		shop:     opts.Shopping,
		fsm:      opts.FSM,
		names:    opts.Names,
		username: opts.Username,
	}, nil
}

// FSM returns the conversation state manager.
func (b *Bot) FSM() state.Manager {
	return b.fsm
}

// Register binds commands, callbacks and the conversation handler.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: b.guard(b.Start), Description: "Main menu"}},
		{"/list", commands.Command{Handler: b.guard(b.ShowList), Description: "Show my list"}},
		{"/add", commands.Command{Handler: b.guard(b.StartAdd), Description: "Add a product", Aliases: []string{"new"}}},
		{"/share", commands.Command{Handler: b.guard(b.Share), Description: "Share my list"}},
		{"/cancel", commands.Command{Handler: b.guard(b.Menu), Description: "Cancel and go to menu"}},
		{"/help", commands.Command{Handler: b.guard(b.Help), Description: "How to use the bot"}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}

	callbacks := map[string]tele.HandlerFunc{
		cbMenu:        b.Menu,
		cbList:        b.ShowList,
		cbAdd:         b.StartAdd,
		cbAddMore:     b.StartAdd,
		cbPick:        b.PickSuggestion,
		cbDelete:      b.DeleteItem,
		cbRefresh:     b.RefreshShared,
		cbShare:       b.Share,
		cbShareRotate: b.RotateShare,
		cbClear:       b.ClearList,
	}
	for key, h := range callbacks {
		if err := reg.RegisterCallback(key, b.guard(h)); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}
	reg.SetTextFallback(b.UnknownText())
	reg.SetCallbackNotFound(b.UnknownCallback())

	b.fsm.RegisterHandler(StateAwaitingProduct, b.guard(b.OnProductText))
	return nil
}

// guard shows a generic failure message when h fails and passes the error on for logging.
func (b *Bot) guard(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		err := h(c)
		if err == nil {
			return nil
		}
		_ = tghelpers.Respond(c, "")
		_ = tghelpers.SendMD(c, textFailure)
		return err
	}
}

// render edits the message behind a button press, or sends a new one.
func (b *Bot) render(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if c.Callback() != nil {
		return tghelpers.EditOrSendMD(c, text, markup)
	}
	return tghelpers.SendMD(c, text, markup)
}

// reset returns the user to idle and forgets rendered suggestions.
func (b *Bot) reset(userID int64) {
	b.fsm.ClearState(userID)
	b.fsm.ClearTemp(userID, tempSuggestions)
}

func (b *Bot) transition(c tele.Context, userID int64, to state.State) {
	from := b.fsm.GetState(userID)
	if to == state.StateIdle {
		b.reset(userID)
	} else {
		b.fsm.SetState(userID, to)
	}
	if from != to {
		logger.Debug(tghelpers.BuildContext(c), "bot.flow", "state.change",
			slog.Int64("user_id", userID),
			slog.String("from", string(from)),
			slog.String("state", string(to)),
		)
	}
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}
