package logger

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Sanitize drops control and format runes from s, keeping tabs and newlines.
// Product names come straight from chat input and end up in log lines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and cuts it to at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID returns the correlation id "update:chat:user".
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites an "update:chat:user" id as dot separated base36
// segments. Anything else is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// Status maps err to the "status" field value.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Took returns the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values and reports whether some were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	limit = max(limit, 0)
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
