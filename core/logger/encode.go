package logger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// keys lists r's keys: those named in order first, the rest sorted.
func (r record) keys(order []string) []string {
	keys := make([]string, 0, len(r))
	for _, k := range order {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
		}
	}
	known := len(keys)
	for k := range r {
		if !slices.Contains(keys[:known], k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[known:])
	return keys
}

func encodeJSON(r record, order []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, k := range r.keys(order) {
		v, err := json.Marshal(r[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func encodeKV(r record, order []string) []byte {
	buf := make([]byte, 0, 256)
	for i, k := range r.keys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = appendKV(buf, r[k])
	}
	return buf
}

func appendKV(buf []byte, v any) []byte {
	var s string
	switch v := v.(type) {
	case bool:
		return strconv.AppendBool(buf, v)
	case int:
		return strconv.AppendInt(buf, int64(v), 10)
	case int64:
		return strconv.AppendInt(buf, v, 10)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
