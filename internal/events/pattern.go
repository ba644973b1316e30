// ABOUTME: Compiled event type patterns for subscription matching
// ABOUTME: Supports literal names and trailing-wildcard prefixes like resource.*

package events

import (
	"fmt"
	"strings"
)

// Pattern is a compiled event type matcher. Compiled once at subscribe
// time and reused for every published event.
type Pattern struct {
	raw      string
	prefix   string // non-empty for trailing-wildcard patterns
	wildcard bool
}

// CompilePattern parses a literal type name ("resource.created") or a
// trailing-wildcard pattern ("resource.*"). Wildcards are only valid as
// the final segment; a bare "*" matches every type.
func CompilePattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	if raw == "*" {
		return Pattern{raw: raw, wildcard: true}, nil
	}
	if idx := strings.Index(raw, "*"); idx >= 0 {
		if !strings.HasSuffix(raw, ".*") || idx != len(raw)-1 {
			return Pattern{}, fmt.Errorf("invalid pattern %q: wildcard must be a trailing .* segment", raw)
		}
		return Pattern{raw: raw, prefix: raw[:len(raw)-1], wildcard: true}, nil
	}
	return Pattern{raw: raw}, nil
}

// Matches reports whether the event type satisfies the pattern.
func (p Pattern) Matches(eventType string) bool {
	if p.wildcard {
		return strings.HasPrefix(eventType, p.prefix) && len(eventType) > len(p.prefix)
	}
	return eventType == p.raw
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }
