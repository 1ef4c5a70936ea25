package familyj

import (
	"encoding/json"
	"strconv"
)

// Field access helpers. FamilyJ firmware revisions disagree on field
// names and on whether numbers arrive as JSON numbers or strings, so
// every accessor takes an alias list and coerces.

// getString returns the first present, non-empty field as a string.
// Numeric values are rendered in decimal.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return formatNumber(t)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

// getInt returns the first present field coerced to int.
func getInt(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t), true
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n, true
			}
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return int(n), true
			}
		}
	}
	return 0, false
}

// intOrZero is getInt with a zero default.
func intOrZero(m map[string]any, keys ...string) int {
	v, _ := getInt(m, keys...)
	return v
}

// nonZeroFloat returns the field as a float pointer, collapsing both
// absence and a raw zero to nil. The devices report zero for sensors
// that are not populated.
func nonZeroFloat(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case string:
			parsed, err := strconv.ParseFloat(t, 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if f == 0 {
			return nil
		}
		return &f
	}
	return nil
}

// getArray returns the first present field as a list of objects.
func getArray(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		raw, ok := m[k].([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

// messageID renders uuid_number, which arrives as either a number or a
// string depending on firmware.
func messageID(env map[string]any) string {
	v, ok := env["uuid_number"]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// formatNumber renders a JSON number without a trailing ".0" for
// integral values.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
