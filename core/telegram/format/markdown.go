package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return escape(text, mdV1Specials), nil
	case MarkdownV2:
		return escape(text, mdV2Specials), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// MD escapes user text for the legacy Markdown parse mode.
func MD(text string) string {
	return escape(text, mdV1Specials)
}

func escape(text, specials string) string {
	if !strings.ContainsAny(text, specials) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
