package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders one flat json or kv line per record. Groups are
// folded into dotted keys; attrs bound through With are resolved once.
type structuredHandler struct {
	cfg    handlerConfig
	prefix string
	bound  []field
}

type field struct {
	key string
	val any
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	full := h.cfg.format == formatJSON

	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if full {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.bound {
		rec[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, rec.set)
		return true
	})
	addContextFields(ctx, rec)
	rec.finish(r.Message, full)

	var (
		line []byte
		err  error
	)
	if full {
		line, err = encodeJSON(rec, h.cfg.keyOrder)
	} else {
		line = encodeKV(rec, h.cfg.keyOrder)
	}
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.bound = append([]field(nil), h.bound...)
	for _, a := range attrs {
		flatten(h.prefix, a, func(k string, v any) {
			clone.bound = append(clone.bound, field{key: k, val: v})
		})
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// flatten walks a, expanding groups into dotted keys, and hands every leaf
// that has a key and a value to emit.
func flatten(prefix string, a slog.Attr, emit func(string, any)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := leafValue(key, v); ok {
		emit(k, val)
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// leafValue converts v to a json-friendly value. Durations become whole
// milliseconds under a key ending in _ms.
func leafValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindAny:
		return anyValue(key, v.Any())
	}
	return key, v.Any(), true
}

func anyValue(key string, x any) (string, any, bool) {
	switch x := x.(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	}
	return key, fmt.Sprint(x), true
}

// durationKey puts the unit into duration attribute keys.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// record is one log line under construction, keyed by output field name.
type record map[string]any

func (r record) set(key string, val any) { r[key] = val }

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// finish compacts the rid, fills event and component, and drops values that
// must not reach the output. withFull keeps the raw rid as rid_full.
func (r record) finish(msg string, withFull bool) {
	if rid := r.str("rid"); rid != "" {
		if short := CompactRID(rid); short != "" && short != rid {
			if _, seen := r["rid_full"]; withFull && !seen {
				r["rid_full"] = rid
			}
			r["rid"] = short
		}
	}
	if r.str("event") == "" {
		r["event"] = cmp.Or(msg, "unknown")
	}
	if r.str("component") == "" {
		r["component"] = "app"
	}
	sanitizeEnumerations(r)
	clipUserText(r)
	r.prune()
}

// clipUserText cleans fields that carry raw chat input, such as product
// names and /start payloads, before they reach a log line.
func clipUserText(r record) {
	for _, key := range userTextFields {
		if v, ok := r[key].(string); ok {
			r[key] = SanitizeLimit(v, userTextLimit)
		}
	}
}

// sanitizeEnumerations maps level and status to their canonical spelling and
// drops enum fields holding values outside their allowed set.
func sanitizeEnumerations(r record) {
	if _, ok := r["level"]; ok {
		r["level"] = normalizeLevel(r.str("level"))
	}
	if s := r.str("status"); s != "" {
		if canonical, ok := normalizeStatus(s); ok {
			r["status"] = canonical
		}
	}
	for name := range enumFields {
		v := r.str(name)
		if v == "" {
			continue
		}
		if canonical, ok := normalizeEnum(name, v); ok {
			r[name] = canonical
		} else {
			delete(r, name)
		}
	}
}

func (r record) prune() {
	for k, v := range r {
		switch v := v.(type) {
		case nil:
			delete(r, k)
		case string:
			if v == "" {
				delete(r, k)
			}
		case fmt.Stringer:
			if v.String() == "" {
				delete(r, k)
			}
		}
	}
}

func addContextFields(ctx context.Context, r record) {
	MetaFrom(ctx).fill(r)
}
