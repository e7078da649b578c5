package expr

import (
	"fmt"
	"strings"
)

// Func is a predicate function callable as a final dotted segment,
// e.g. "agent_id.startswith('researcher')". The receiver is the value
// the preceding path resolved to (nil if unresolved).
//
// The function table is a fixed allowlist: conditions can never
// dispatch to arbitrary methods by name.
type Func func(recv any, args []any) (any, error)

// builtins returns the default predicate function table: string
// prefix/suffix/substring checks, case folding, and length.
func builtins() map[string]Func {
	return map[string]Func{
		"startswith": func(recv any, args []any) (any, error) {
			if err := wantArgs("startswith", args, 1); err != nil {
				return nil, err
			}
			return strings.HasPrefix(asString(recv), asString(args[0])), nil
		},
		"endswith": func(recv any, args []any) (any, error) {
			if err := wantArgs("endswith", args, 1); err != nil {
				return nil, err
			}
			return strings.HasSuffix(asString(recv), asString(args[0])), nil
		},
		"contains": func(recv any, args []any) (any, error) {
			if err := wantArgs("contains", args, 1); err != nil {
				return nil, err
			}
			return contains(args[0], recv), nil
		},
		"lower": func(recv any, args []any) (any, error) {
			if err := wantArgs("lower", args, 0); err != nil {
				return nil, err
			}
			return strings.ToLower(asString(recv)), nil
		},
		"upper": func(recv any, args []any) (any, error) {
			if err := wantArgs("upper", args, 0); err != nil {
				return nil, err
			}
			return strings.ToUpper(asString(recv)), nil
		},
		"len": func(recv any, args []any) (any, error) {
			if err := wantArgs("len", args, 0); err != nil {
				return nil, err
			}
			switch v := recv.(type) {
			case nil:
				return int64(0), nil
			case string:
				return int64(len(v)), nil
			case []any:
				return int64(len(v)), nil
			case map[string]any:
				return int64(len(v)), nil
			default:
				return int64(len(asString(v))), nil
			}
		},
	}
}

func wantArgs(fn string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d argument(s), got %d", fn, n, len(args))
	}
	return nil
}

// asString renders a value for string predicates. nil renders as the
// empty string so predicates on absent fields are false, not errors.
func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
