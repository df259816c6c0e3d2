package config

import (
	"regexp"
)

// envRef matches ${NAME} references in config file strings.
var envRef = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// expandEnv replaces ${NAME} in every string value of m, descending into
// nested maps and lists. Unset names are left as written so a missing
// secret shows up verbatim in validation errors instead of as "".
func expandEnv(m map[string]any, lookupEnv func(string) (string, bool)) map[string]any {
	if m == nil || lookupEnv == nil {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = expandValue(v, lookupEnv)
	}
	return out
}

func expandValue(v any, lookupEnv func(string) (string, bool)) any {
	switch val := v.(type) {
	case string:
		return envRef.ReplaceAllStringFunc(val, func(ref string) string {
			if s, ok := lookupEnv(ref[2 : len(ref)-1]); ok {
				return s
			}
			return ref
		})
	case map[string]any:
		return expandEnv(val, lookupEnv)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = expandValue(item, lookupEnv)
		}
		return items
	default:
		return v
	}
}
