package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

var errBotNotReady = errors.New("bot not started")

// chatNames resolves owner names through getChat once the bot is running.
type chatNames struct {
	bot *atomic.Pointer[tele.Bot]
}

func (n chatNames) DisplayName(_ context.Context, userID int64) (string, error) {
	b := n.bot.Load()
	if b == nil {
		return "", errBotNotReady
	}
	chat, err := b.ChatByID(userID)
	if err != nil {
		return "", err
	}
	return formatChatName(chat), nil
}

// formatChatName renders "First Last (@user)", dropping missing parts.
func formatChatName(chat *tele.Chat) string {
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name == "" {
		name = chat.Title
	}
	if chat.Username != "" {
		if name == "" {
			return "@" + chat.Username
		}
		name += " (@" + chat.Username + ")"
	}
	return name
}
