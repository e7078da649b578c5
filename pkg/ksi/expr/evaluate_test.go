package expr

import (
	"testing"
)

func TestEvaluate_Comparison(t *testing.T) {
	tests := []struct {
		name string
		expr string
		data map[string]any
		want bool
	}{
		{
			name: "string equality with single quotes",
			expr: "status == 'success'",
			data: map[string]any{"status": "success"},
			want: true,
		},
		{
			name: "string equality with double quotes",
			expr: `status == "success"`,
			data: map[string]any{"status": "success"},
			want: true,
		},
		{
			name: "string equality false",
			expr: "status == 'error'",
			data: map[string]any{"status": "success"},
			want: false,
		},
		{
			name: "not equal",
			expr: "status != 'error'",
			data: map[string]any{"status": "success"},
			want: true,
		},
		{
			name: "integer literal equals json float",
			expr: "count == 5",
			data: map[string]any{"count": float64(5)},
			want: true,
		},
		{
			name: "less than",
			expr: "latency < 100",
			data: map[string]any{"latency": 42},
			want: true,
		},
		{
			name: "less than or equal boundary",
			expr: "latency <= 42",
			data: map[string]any{"latency": 42},
			want: true,
		},
		{
			name: "greater than false",
			expr: "latency > 100",
			data: map[string]any{"latency": 42},
			want: false,
		},
		{
			name: "greater or equal",
			expr: "retries >= 3",
			data: map[string]any{"retries": int64(3)},
			want: true,
		},
		{
			name: "numeric string coerces for ordering",
			expr: "latency < 100",
			data: map[string]any{"latency": "42"},
			want: true,
		},
		{
			name: "ordering on non-numeric values is false",
			expr: "status < 5",
			data: map[string]any{"status": "success"},
			want: false,
		},
		{
			name: "boolean literal",
			expr: "enabled == true",
			data: map[string]any{"enabled": true},
			want: true,
		},
		{
			name: "none literal matches absent field",
			expr: "missing == none",
			data: map[string]any{"status": "success"},
			want: true,
		},
		{
			name: "null spelling",
			expr: "missing == null",
			data: map[string]any{},
			want: true,
		},
		{
			name: "present field is not none",
			expr: "status != none",
			data: map[string]any{"status": "success"},
			want: true,
		},
		{
			name: "negative number",
			expr: "delta < -1",
			data: map[string]any{"delta": -5},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, tt.data, nil)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Logical(t *testing.T) {
	data := map[string]any{"status": "success", "latency": 42, "cancelled": false}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"and both true", "status == 'success' and latency < 100", true},
		{"and one false", "status == 'success' and latency > 100", false},
		{"or short circuit", "status == 'error' or latency < 100", true},
		{"or both false", "status == 'error' or latency > 100", false},
		{"not", "not cancelled", true},
		{"not comparison", "not status == 'error'", true},
		{"precedence and binds tighter than or", "status == 'error' and latency > 100 or status == 'success'", true},
		{"parentheses override precedence", "status == 'error' and (latency > 100 or status == 'success')", false},
		{"chained and", "status == 'success' and latency < 100 and not cancelled", true},
		{"bare truthy identifier", "status", true},
		{"bare falsy identifier", "cancelled", false},
		{"missing identifier is falsy", "missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, data, nil)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Membership(t *testing.T) {
	data := map[string]any{
		"status": "partial",
		"error":  "connection timeout after 30s",
		"result": map[string]any{"code": float64(2)},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"in list", "status in ['success', 'partial']", true},
		{"in list false", "status in ['success', 'error']", false},
		{"not in list", "status not in ['cancelled']", true},
		{"not in list false", "status not in ['partial']", false},
		{"substring in string", "'timeout' in error", true},
		{"substring in string false", "'denied' in error", false},
		{"key in map", "'code' in result", true},
		{"key in map false", "'detail' in result", false},
		{"number in list", "result.code in [1, 2, 3]", true},
		{"in against missing field", "'x' in missing", false},
		{"empty list never contains", "status in []", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, data, nil)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_DottedPathsAndContext(t *testing.T) {
	data := map[string]any{
		"result": map[string]any{
			"inner": map[string]any{"value": float64(7)},
		},
		"shadowed": "from_data",
	}
	context := map[string]any{
		"_orchestration_id": "orch_1",
		"shadowed":          "from_context",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"nested path", "result.inner.value == 7", true},
		{"context fallback", "_orchestration_id == 'orch_1'", true},
		{"data shadows context", "shadowed == 'from_data'", true},
		{"unresolved nested path is none", "result.inner.missing == none", true},
		{"path through non-map is none", "result.inner.value.deeper == none", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, data, context)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_PredicateFunctions(t *testing.T) {
	data := map[string]any{
		"agent_id": "researcher_42",
		"error":    "fatal: disk full",
		"tags":     []any{"a", "b"},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"startswith", "agent_id.startswith('researcher')", true},
		{"startswith false", "agent_id.startswith('writer')", false},
		{"endswith", "agent_id.endswith('42')", true},
		{"contains", "error.contains('disk')", true},
		{"contains on list", "tags.contains('a')", true},
		{"lower", "agent_id.lower() == 'researcher_42'", true},
		{"upper in comparison", "agent_id.upper().startswith('RESEARCHER')", false}, // chained calls are not part of the grammar
		{"len of list", "tags.len() == 2", true},
		{"len of missing field is zero", "missing.len() == 0", true},
		{"startswith on missing field", "missing.startswith('x')", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, data, nil)
			if tt.name == "upper in comparison" {
				// "agent_id.upper().startswith(...)" is a syntax error:
				// a call result cannot be a receiver.
				if err == nil {
					t.Fatalf("expected syntax error for chained call")
				}
				return
			}
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_SyntaxErrors(t *testing.T) {
	exprs := []string{
		"status ==",
		"== 'success'",
		"status == 'success' extra",
		"(status == 'success'",
		"status in ['a', ",
		"status === 'x'",
		"'unterminated",
		"status not 'x'",
		"and and",
		"status @ 5",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			if _, err := Eval(expr, map[string]any{"status": "success"}, nil); err == nil {
				t.Errorf("Eval(%q) expected syntax error, got none", expr)
			}
		})
	}
}

func TestEvaluate_UnknownFunctionIsError(t *testing.T) {
	_, err := Eval("agent_id.exec('rm -rf')", map[string]any{"agent_id": "a"}, nil)
	if err == nil {
		t.Fatal("expected error for function outside the allowlist")
	}
}

func TestCheck_Policy(t *testing.T) {
	data := map[string]any{"status": "success"}

	open := New(WithPolicy(FailOpen))
	closed := New(WithPolicy(FailClosed))

	// Valid condition: both policies agree with the real result.
	if !open.Check("status == 'success'", data, nil) {
		t.Error("fail-open evaluator rejected a true condition")
	}
	if closed.Check("status == 'error'", data, nil) {
		t.Error("fail-closed evaluator accepted a false condition")
	}

	// Malformed condition: policy decides.
	if !open.Check("status ==", data, nil) {
		t.Error("fail-open must treat malformed condition as satisfied")
	}
	if closed.Check("status ==", data, nil) {
		t.Error("fail-closed must treat malformed condition as unsatisfied")
	}

	// Empty condition is always satisfied regardless of policy.
	if !open.Check("", data, nil) || !closed.Check("  ", data, nil) {
		t.Error("empty condition must be satisfied")
	}
}

func TestEvaluator_CustomFunc(t *testing.T) {
	e := New(WithFunc("is_even", func(recv any, args []any) (any, error) {
		f, _ := toFloat64(recv)
		return int64(f)%2 == 0, nil
	}))

	got, err := e.Evaluate("count.is_even()", map[string]any{"count": 4}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected custom predicate to return true")
	}
}

func TestEvaluator_ParseCache(t *testing.T) {
	e := New()
	data := map[string]any{"n": 1}

	// Same expression twice: second evaluation hits the cache and must
	// produce the same result.
	for i := 0; i < 2; i++ {
		got, err := e.Evaluate("n == 1", data, nil)
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if !got {
			t.Errorf("pass %d: expected true", i)
		}
	}
}
