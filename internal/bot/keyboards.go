package bot

import (
	"fmt"
	"strconv"

	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/internal/models"

	tele "gopkg.in/telebot.v4"
)

// Callback keys.
const (
	cbMenu        = "menu_main"
	cbList        = "menu_list"
	cbAdd         = "menu_add"
	cbShare       = "menu_share"
	cbClear       = "menu_clear"
	cbAddMore     = "add_more"
	cbPick        = "add_pick"
	cbDelete      = "item_del"
	cbRefresh     = "list_refresh"
	cbShareRotate = "share_rotate"
)

func menuKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "📋 My list", Unique: cbList},
			{Text: "➕ Add", Unique: cbAdd},
		},
		[]keyboard.InlineBtn{
			{Text: "🔗 Share list", Unique: cbShare},
			{Text: "🗑 Clear my list", Unique: cbClear},
		},
	)
}

func backRow() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{{Text: "⬅️ Menu", Unique: cbMenu}}
}

// listKeyboard renders one delete button per item. The owner gets a way back
// to the menu; a viewer of someone else's list gets a refresh button.
func listKeyboard(items []models.Item, ownerID int64, own bool) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(items)+1)
	for i, it := range items {
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   fmt.Sprintf("%d. %s ❌", i+1, it.ProductName),
			Unique: cbDelete,
			Data:   fmt.Sprintf("%d|%d", it.ID, ownerID),
		}})
	}
	if own {
		rows = append(rows, backRow())
	} else {
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   "🔄 Refresh",
			Unique: cbRefresh,
			Data:   strconv.FormatInt(ownerID, 10),
		}})
	}
	return keyboard.InlineButtonsRows(rows...)
}

// suggestionsKeyboard refers to picks by render number and position; the
// names stay in the user's session because Telegram caps callback data at
// 64 bytes.
func suggestionsKeyboard(set pickSet) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(set.Names)+1)
	for i, name := range set.Names {
		btns = append(btns, keyboard.InlineBtn{
			Text:   "💡 " + name,
			Unique: cbPick,
			Data:   strconv.FormatUint(set.Gen, 10) + "|" + strconv.Itoa(i),
		})
	}
	btns = append(btns, keyboard.InlineBtn{Text: "⬅️ Cancel", Unique: cbMenu})
	return keyboard.InlineButtons(btns)
}

func addMoreKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "✅ Yes", Unique: cbAddMore},
		{Text: "❌ No", Unique: cbMenu},
	}, 2)
}

func shareKeyboard(rotatable bool) *tele.ReplyMarkup {
	var rotate []keyboard.InlineBtn
	if rotatable {
		rotate = []keyboard.InlineBtn{{Text: "♻️ New link", Unique: cbShareRotate}}
	}
	return keyboard.InlineButtonsRows(rotate, backRow())
}
