package agents

import (
	"strings"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// extractJSON returns the outermost open...close span of s, so answers
// wrapped in prose or code fences still parse. ok is false when s holds
// no such span.
func extractJSON(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// lastUserQuery returns the most recent user message, trimmed.
func lastUserQuery(s *state.State) string {
	q, _ := s.LastUserMessage()
	return strings.TrimSpace(q)
}
