package expr

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property-based test: for any syntactically valid condition and any
// data map, evaluation terminates with a boolean and never panics.
func TestEvaluate_PropertyTotalForValidExpressions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ops := []string{"==", "!=", "<", "<=", ">", ">=", "in", "not in"}
	joiners := []string{"and", "or"}

	properties.Property("evaluation is total over generated expressions", prop.ForAll(
		func(fieldSuffix string, opIdx int, joinIdx int, negate bool, numLit int, strLit string, value int, present bool) bool {
			// Prefix keeps generated names out of the keyword set.
			field := "f_" + fieldSuffix
			op := ops[opIdx%len(ops)]
			join := joiners[joinIdx%len(joiners)]

			right := fmt.Sprintf("%d", numLit)
			if op == "in" || op == "not in" {
				right = fmt.Sprintf("[%d, '%s']", numLit, strLit)
			}

			expr := fmt.Sprintf("%s %s %s %s %s.startswith('%s')", field, op, right, join, field, strLit)
			if negate {
				expr = "not (" + expr + ")"
			}

			data := map[string]any{}
			if present {
				data[field] = value
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Evaluate(%q) panicked: %v", expr, r)
				}
			}()

			_, err := Eval(expr, data, nil)
			return err == nil
		},
		gen.RegexMatch(`[a-z0-9_]{0,8}`),
		gen.IntRange(0, 7),
		gen.IntRange(0, 1),
		gen.Bool(),
		gen.IntRange(-1000, 1000),
		gen.RegexMatch(`[a-z0-9 ]{0,12}`),
		gen.IntRange(-1000, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: evaluation of arbitrary (possibly invalid)
// input never panics; it either returns a boolean or an error.
func TestEvaluate_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("arbitrary input never panics", prop.ForAll(
		func(expr string) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Evaluate(%q) panicked: %v", expr, r)
				}
			}()

			_, _ = Eval(expr, map[string]any{"status": "success"}, nil)
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
