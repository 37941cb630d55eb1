package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/core/telegram/format"
	"github.com/m3rciful/shopbot/internal/models"
)

const (
	textMenu          = "🛒 Main menu:"
	textListEmpty     = "📋 Your list is empty."
	textListHeader    = "📋 Your list:"
	textAddPrompt     = "✍️ Type a product or pick one you bought before:"
	textAddPromptNone = "✍️ Type a product name:"
	textEmptyProduct  = "⚠️ The product name is empty. Type it again or press Cancel."
	textCleared       = "🗑 Your list was cleared."
	textInvalidLink   = "⚠️ This link is invalid or has expired."
	textForbidden     = "This list is not shared with you. Open the link again."
	textPickExpired   = "This suggestion is no longer available."
	textDeleted       = "Deleted"
	textRotated       = "Link replaced"
	textFailure       = "⚠️ Something went wrong. Please try again."
	textUnknown       = "Use the buttons below or /add to put a product on your list."

	textHelp = "*Shopping list bot*\n\n" +
		"/add - add a product\n" +
		"/list - show your list\n" +
		"/share - get a link for someone else\n" +
		"/cancel - stop and go to the menu\n\n" +
		"Tap a product on the list to remove it once bought."
)

func greetingText(firstName string) string {
	if firstName == "" {
		return textMenu
	}
	return fmt.Sprintf("👋 Hi, %s!\n\n%s", format.MD(firstName), textMenu)
}

func addedText(name string) string {
	return fmt.Sprintf("✅ Added: %s\nAdd another?", format.MD(name))
}

func ownListText(items []models.Item) string {
	if len(items) == 0 {
		return textListEmpty
	}
	return textListHeader
}

func sharedListText(ownerName string, ownerID int64, items []models.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Shared list of %s (`%d`)\n\n", format.MD(ownerName), ownerID)
	if len(items) == 0 {
		b.WriteString("The list is empty.")
	} else {
		b.WriteString("Tap a product once it is bought to remove it.")
	}
	return b.String()
}

func shareText(link string, rotatable bool) string {
	text := "🔗 Send this link to share your list:\n\n" + format.MD(link)
	if rotatable {
		text += "\n\nCreate a new link to lock out everyone who has the old one."
	}
	return text
}
