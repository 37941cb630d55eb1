package bot

import (
	"errors"
	"fmt"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/service"

	tele "gopkg.in/telebot.v4"
)

// StartAdd enters AwaitingProductText and offers the most used products.
func (b *Bot) StartAdd(c tele.Context) error {
	userID := senderID(c)
	names, err := b.shop.Suggestions(tghelpers.BuildContext(c), userID)
	if err != nil {
		return fmt.Errorf("load suggestions: %w", err)
	}

	set := pickSet{Gen: b.picks.Add(1), Names: names}
	b.fsm.SetTemp(userID, tempSuggestions, set)
	b.transition(c, userID, StateAwaitingProduct)

	prompt := textAddPrompt
	if len(names) == 0 {
		prompt = textAddPromptNone
	}
	return b.render(c, prompt, suggestionsKeyboard(set))
}

// OnProductText handles free text while AwaitingProductText.
func (b *Bot) OnProductText(c tele.Context) error {
	userID := senderID(c)
	name, err := b.shop.AddProduct(tghelpers.BuildContext(c), userID, c.Text())
	if errors.Is(err, service.ErrEmptyProduct) {
		return tghelpers.SendMD(c, textEmptyProduct, suggestionsKeyboard(b.pendingSuggestions(userID)))
	}
	if err != nil {
		return fmt.Errorf("add product: %w", err)
	}
	b.transition(c, userID, state.StateIdle)
	return tghelpers.SendMD(c, addedText(name), addMoreKeyboard())
}

// PickSuggestion adds one of the rendered quick picks as is. Buttons of an
// older keyboard than the last one shown to the user are refused.
func (b *Bot) PickSuggestion(c tele.Context) error {
	userID := senderID(c)
	gen, idx, err := callbacks.PayloadTwoInt64(c, "|")
	set := b.pendingSuggestions(userID)
	if err != nil || gen <= 0 || uint64(gen) != set.Gen || idx < 0 || idx >= int64(len(set.Names)) ||
		b.fsm.GetState(userID) != StateAwaitingProduct {
		return tghelpers.Respond(c, textPickExpired)
	}
	name := set.Names[idx]

	if err := b.shop.AddSuggestion(tghelpers.BuildContext(c), userID, name); err != nil {
		return fmt.Errorf("add suggestion: %w", err)
	}
	b.transition(c, userID, state.StateIdle)
	return b.render(c, addedText(name), addMoreKeyboard())
}

// pickSet is the suggestions list behind one rendered keyboard.
type pickSet struct {
	Gen   uint64
	Names []string
}

func (b *Bot) pendingSuggestions(userID int64) pickSet {
	v, ok := b.fsm.GetTemp(userID, tempSuggestions)
	if !ok {
		return pickSet{}
	}
	set, _ := v.(pickSet)
	return set
}
