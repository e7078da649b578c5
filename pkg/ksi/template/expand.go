package template

import (
	"fmt"
	"regexp"
	"strings"
)

// bracePattern matches ${path} - a dotted identifier path.
var bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Expander resolves ${path} placeholders in mapping templates against
// a variable map. Dotted paths traverse nested maps.
//
// Expander is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
}

// NewExpander creates a new Expander with the given options.
//
// Default configuration keeps unresolved placeholders as-is
// (MissingKeep), so a typo in a mapping is visible in the derived
// event rather than silently blank.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missingAction: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces ${path} placeholders in s with values from vars.
//
// Errors are only returned when MissingAction is MissingError and a
// placeholder does not resolve.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missingVars []string

	result := bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[2 : len(match)-1]
		if val, ok := resolve(path, vars); ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missingVars = append(missingVars, path)
			return match
		default: // MissingKeep
			return match
		}
	})

	if len(missingVars) > 0 {
		return result, &UndefinedVariableError{Names: missingVars}
	}
	return result, nil
}

// ResolveValue resolves one mapping value. A string that is exactly a
// single placeholder yields the referenced value with its type intact
// ("${result}" can carry a whole nested map into the derived event);
// any other string is expanded textually. Nested maps and slices are
// resolved recursively, everything else is copied as-is.
func (e *Expander) ResolveValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if path, ok := wholePlaceholder(val); ok {
			if resolved, found := resolve(path, vars); found {
				return resolved, nil
			}
			switch e.missingAction {
			case MissingEmpty:
				return nil, nil
			case MissingError:
				return nil, &UndefinedVariableError{Names: []string{path}}
			default:
				return val, nil
			}
		}
		return e.Expand(val, vars)
	case map[string]any:
		return e.ResolveMap(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := e.ResolveValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveMap resolves every value of a mapping template, returning a
// new map.
func (e *Expander) ResolveMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := e.ResolveValue(v, vars)
		if err != nil {
			return nil, err
		}
		result[k] = resolved
	}
	return result, nil
}

// wholePlaceholder reports whether s is exactly one ${path}
// placeholder and returns the path.
func wholePlaceholder(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	loc := bracePattern.FindStringIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return "", false
	}
	return s[2 : len(s)-1], true
}

// resolve looks up a dotted path in vars, traversing nested maps.
func resolve(path string, vars map[string]any) (any, bool) {
	if vars == nil {
		return nil, false
	}
	// Fast path: plain key, possibly containing dots itself.
	if v, ok := vars[path]; ok {
		return v, true
	}

	segments := strings.Split(path, ".")
	var current any = vars
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// UndefinedVariableError reports placeholders that did not resolve.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}
