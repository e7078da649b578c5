package event

import (
	"fmt"
	"strings"
)

// ValidateName checks that a name is a two-part namespaced event name
// of the form "domain:action" with non-empty segments.
func ValidateName(name string) error {
	domain, action, ok := strings.Cut(name, ":")
	if !ok || domain == "" || action == "" {
		return fmt.Errorf("event name %q is not of the form domain:action", name)
	}
	if strings.Contains(action, ":") {
		return fmt.Errorf("event name %q has more than two segments", name)
	}
	return nil
}

// MatchPattern reports whether a namespaced event name matches a
// pattern. Patterns are exact names or globs over the two segments:
//
//	"completion:result"  exact match
//	"completion:*"       any action in the completion domain
//	"*:error"            error action in any domain
//	"*"                  every event
//
// Within a segment, "*" matches any suffix ("agent:status*" matches
// "agent:status_changed").
func MatchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == name {
		return true
	}

	pd, pa, ok := strings.Cut(pattern, ":")
	if !ok {
		return false
	}
	nd, na, ok := strings.Cut(name, ":")
	if !ok {
		return false
	}

	return matchSegment(pd, nd) && matchSegment(pa, na)
}

// MatchAny reports whether a name matches any of the patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchPattern(p, name) {
			return true
		}
	}
	return false
}

// ValidatePattern checks that a pattern is non-empty and, if it is not
// a bare "*", has the two-segment shape event names have.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty event pattern")
	}
	if pattern == "*" {
		return nil
	}
	domain, action, ok := strings.Cut(pattern, ":")
	if !ok || domain == "" || action == "" {
		return fmt.Errorf("event pattern %q is not of the form domain:action", pattern)
	}
	if strings.Contains(action, ":") {
		return fmt.Errorf("event pattern %q has more than two segments", pattern)
	}
	return nil
}

// matchSegment matches one namespaced segment against a pattern
// segment. Only a trailing "*" is treated as a wildcard.
func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(segment, prefix)
	}
	return pattern == segment
}
