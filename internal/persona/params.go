package persona

import (
	"strconv"
	"strings"

	"DealPilot/internal/normalize"
)

// Params are a job's loosely typed parameters.
type Params map[string]any

func (p Params) record() normalize.Record { return normalize.Record(p) }

// String returns the first non-blank value among keys.
func (p Params) String(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(p.record().String(key)); v != "" {
			return v
		}
	}
	return ""
}

// List returns key as a list; a string value is split on commas.
func (p Params) List(key string) []string {
	v, ok := p.record().Value(key)
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return p.record().Strings(key)
}

// Raw returns the untyped value under key.
func (p Params) Raw(key string) (any, bool) {
	return p.record().Value(key)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		if s, ok := v.(interface{ String() string }); ok {
			i, err := strconv.Atoi(s.String())
			return i, err == nil
		}
	}
	return 0, false
}
