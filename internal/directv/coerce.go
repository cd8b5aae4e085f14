package directv

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// numberLike matches json.Number from either encoding/json or goccy/go-json.
type numberLike interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// lookup returns the value for key when it is present and not JSON null.
func lookup(data map[string]any, key string) (any, bool) {
	if data == nil {
		return nil, false
	}
	value, ok := data[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func stringField(data map[string]any, key, fallback string) string {
	value, ok := lookup(data, key)
	if !ok {
		return fallback
	}
	return toString(value)
}

func intField(data map[string]any, key string, fallback int) int {
	value, ok := lookup(data, key)
	if !ok {
		return fallback
	}
	n, ok := toInt64(value)
	if !ok {
		return fallback
	}
	return int(n)
}

func boolField(data map[string]any, key string) bool {
	value, ok := lookup(data, key)
	if !ok {
		return false
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

func mapField(data map[string]any, key string) map[string]any {
	value, ok := lookup(data, key)
	if !ok {
		return nil
	}
	m, _ := value.(map[string]any)
	return m
}

func listField(data map[string]any, key string) []map[string]any {
	value, ok := lookup(data, key)
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case []map[string]any:
		return v
	case []any:
		items := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	default:
		return nil
	}
}

// unixField converts a Unix timestamp in seconds to a UTC instant.
func unixField(data map[string]any, key string) *time.Time {
	value, ok := lookup(data, key)
	if !ok {
		return nil
	}
	seconds, ok := toInt64(value)
	if !ok {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case numberLike:
		return v.String()
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case numberLike:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
