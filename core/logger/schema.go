package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
	"denied":       "denied",
}

// enumFields lists fields whose values are restricted; unknown values are
// dropped so dashboards only ever see the listed ones.
var enumFields = map[string]map[string]struct{}{
	"outcome":    set("ok", "fail", "cancelled", "rate_limited", "denied", "skip"),
	"source":     set("text", "suggestion"),
	"share_mode": set("token", "owner_id"),
}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return "", false
	}
	if mapped, ok := allowedStatus[status]; ok {
		return mapped, true
	}
	return status, false
}

// normalizeEnum lowercases v and reports whether it is allowed for field.
func normalizeEnum(field, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	allowed, ok := enumFields[field]
	if !ok || v == "" {
		return v, false
	}
	_, valid := allowed[v]
	return v, valid
}

// userTextFields hold text typed by chat users; they are cleaned and cut to
// userTextLimit runes.
var userTextFields = []string{"product", "payload", "text"}

const userTextLimit = 64

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"owner_id",
	"viewer_id",
	"item_id",
	"product",
	"items",
	"suggestions",
	"state",
	"share_mode",
	"source",
	"payload",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"driver",
	"path",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"worker",
	"backend",
}
