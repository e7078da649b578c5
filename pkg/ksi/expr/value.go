package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// resolver carries the lookup environment for one evaluation: the
// event's data map, its correlation context, and the predicate
// function table.
type resolver struct {
	data    map[string]any
	context map[string]any
	funcs   map[string]Func
}

// lookupPath resolves a dotted path against data first, falling back
// to context. Unresolved identifiers yield (nil, false) rather than an
// error so conditions can test for absent fields with "== none".
func (r *resolver) lookupPath(segments []string) (any, bool) {
	if v, ok := lookup(r.data, segments); ok {
		return v, true
	}
	if v, ok := lookup(r.context, segments); ok {
		return v, true
	}
	return nil, false
}

// lookup traverses nested maps following path segments.
func lookup(m map[string]any, segments []string) (any, bool) {
	if m == nil || len(segments) == 0 {
		return nil, false
	}
	var current any = m
	for _, seg := range segments {
		nested, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = nested[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// IsTruthy returns whether a value is truthy. nil is false, bools
// return their value, empty strings are false, zero numbers are false,
// empty lists and maps are false, everything else is true.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// toFloat64 converts a value to float64 for ordering comparisons.
// Returns false for values with no numeric interpretation.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// equal compares two values. Numbers compare numerically regardless of
// concrete type (JSON decoding produces float64, literals produce
// int64); nil only equals nil; everything else falls back to string
// comparison.
func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lf, lok := toNumber(left); lok {
		if rf, rok := toNumber(right); rok {
			return lf == rf
		}
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			return lb == rb
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

// toNumber is like toFloat64 but does not coerce strings, so "5" and 5
// stay distinct under ordering while equal() still treats int64(5) and
// float64(5) as the same number.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	default:
		return 0, false
	}
}

// compare applies an ordering operator. Both sides must have a numeric
// interpretation; anything else is false rather than an error, keeping
// evaluation total.
func compare(left, right any, op string) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return false
	}
	switch op {
	case "<":
		return lf < rf
	case "<=":
		return lf <= rf
	case ">":
		return lf > rf
	case ">=":
		return lf >= rf
	}
	return false
}

// contains implements the "in" operator: list membership, substring
// for strings, key presence for maps.
func contains(needle, haystack any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if equal(needle, item) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	case map[string]any:
		_, ok := h[fmt.Sprintf("%v", needle)]
		return ok
	case nil:
		return false
	default:
		return false
	}
}
