package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeFormat is the instance's native datetime representation
const DateTimeFormat = "2006-01-02 15:04:05"

// flatten unwraps reference fields, which arrive as {"value": ..., "link": ...}
// objects, down to their value. Scalars pass through unchanged.
func flatten(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		if inner, ok := m["value"]; ok {
			return inner
		}
	}
	return v
}

// asString coerces any field value to its string form
func asString(v interface{}) string {
	switch t := flatten(v).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers decode as float64; render integers without a decimal
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asBool treats "true", "1" and "yes" (any case) as true
func asBool(v interface{}) bool {
	if b, ok := flatten(v).(bool); ok {
		return b
	}
	switch strings.ToLower(asString(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// asInt coerces numeric strings, returning def when empty or unparseable
func asInt(v interface{}, def int) int {
	switch t := flatten(v).(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	s := asString(v)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ParseDateTime parses the native "YYYY-MM-DD HH:MM:SS" format, falling back
// to RFC 3339. Empty or unparseable values yield the zero time; a bad
// timestamp should degrade a single field, not fail the whole record.
func ParseDateTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(DateTimeFormat, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
