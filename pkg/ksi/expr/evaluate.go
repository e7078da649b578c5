package expr

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	kerrors "github.com/durapensa/ksi-go/pkg/ksi/errors"
)

// Policy controls what a condition decides when it cannot be parsed or
// evaluated. The daemon default is fail-open: a malformed condition
// never silently blocks routing.
type Policy int

const (
	// FailOpen treats a malformed condition as satisfied.
	FailOpen Policy = iota

	// FailClosed treats a malformed condition as unsatisfied.
	FailClosed
)

// String returns the policy name.
func (p Policy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// Evaluator evaluates boolean condition expressions against an event's
// data and context maps. Parsed expressions are cached, so repeated
// evaluation of the same condition string only tokenizes once.
//
// Evaluator is safe for concurrent use.
type Evaluator struct {
	funcs     map[string]Func
	policy    Policy
	logger    *slog.Logger
	onFailure func(expr string, err error)

	mu    sync.RWMutex
	cache map[string]node
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPolicy sets the fail-open vs fail-closed policy applied by Check.
func WithPolicy(p Policy) Option {
	return func(e *Evaluator) {
		e.policy = p
	}
}

// WithLogger sets the logger used to report malformed conditions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithFunc registers an additional predicate function. The name should
// not conflict with the built-in table.
func WithFunc(name string, fn Func) Option {
	return func(e *Evaluator) {
		e.funcs[name] = fn
	}
}

// WithFailureHook registers a callback invoked whenever Check falls
// back to its failure policy, so callers can count malformed
// conditions without this package depending on their metrics.
func WithFailureHook(fn func(expr string, err error)) Option {
	return func(e *Evaluator) {
		e.onFailure = fn
	}
}

// New creates a new Evaluator with the built-in predicate table and
// the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		funcs: builtins(),
		cache: make(map[string]node),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates a condition against the data and context maps.
// Identifiers resolve against data first, falling back to context;
// unresolved identifiers are null. The result is the truthiness of the
// expression's value.
func (e *Evaluator) Evaluate(expr string, data, context map[string]any) (bool, error) {
	root, err := e.parse(expr)
	if err != nil {
		return false, err
	}

	r := &resolver{data: data, context: context, funcs: e.funcs}
	value, err := root.eval(r)
	if err != nil {
		return false, &kerrors.MalformedConditionError{Expr: expr, Message: err.Error()}
	}
	return IsTruthy(value), nil
}

// Check evaluates a condition and applies the evaluator's failure
// policy: on parse or evaluation failure it logs a warning and returns
// true under FailOpen or false under FailClosed. An empty condition is
// always satisfied.
func (e *Evaluator) Check(expr string, data, context map[string]any) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}

	result, err := e.Evaluate(expr, data, context)
	if err == nil {
		return result
	}

	if e.logger != nil {
		e.logger.Warn("condition evaluation failed",
			slog.String("expr", expr),
			slog.String("error", err.Error()),
			slog.String("policy", e.policy.String()),
		)
	}
	if e.onFailure != nil {
		e.onFailure(expr, err)
	}
	return e.policy == FailOpen
}

// Eval is a convenience function that evaluates an expression using a
// default evaluator (built-in predicates, no policy handling).
func Eval(expr string, data, context map[string]any) (bool, error) {
	return defaultEvaluator.Evaluate(expr, data, context)
}

var defaultEvaluator = New()

// Valid reports whether an expression parses. Returns a
// MalformedConditionError describing the first problem otherwise. An
// empty expression is valid (it evaluates to true).
func Valid(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := parseExpr(expr)
	return err
}

// parse returns the cached parse tree for an expression, parsing and
// caching on first use.
func (e *Evaluator) parse(expr string) (node, error) {
	e.mu.RLock()
	root, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return root, nil
	}

	root, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expr] = root
	e.mu.Unlock()
	return root, nil
}

// Node evaluation

func (n *orNode) eval(r *resolver) (any, error) {
	for _, term := range n.terms {
		v, err := term.eval(r)
		if err != nil {
			return nil, err
		}
		if IsTruthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func (n *andNode) eval(r *resolver) (any, error) {
	for _, term := range n.terms {
		v, err := term.eval(r)
		if err != nil {
			return nil, err
		}
		if !IsTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func (n *notNode) eval(r *resolver) (any, error) {
	v, err := n.inner.eval(r)
	if err != nil {
		return nil, err
	}
	return !IsTruthy(v), nil
}

func (n *cmpNode) eval(r *resolver) (any, error) {
	left, err := n.left.eval(r)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(left, right, n.op), nil
	case "in":
		return contains(left, right), nil
	case "not in":
		return !contains(left, right), nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

func (n *literalNode) eval(_ *resolver) (any, error) {
	return n.value, nil
}

func (n *pathNode) eval(r *resolver) (any, error) {
	v, _ := r.lookupPath(n.segments)
	return v, nil
}

func (n *callNode) eval(r *resolver) (any, error) {
	fn, ok := r.funcs[n.fn]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.fn)
	}

	var recv any
	if len(n.segments) > 0 {
		recv, _ = r.lookupPath(n.segments)
	}

	args := make([]any, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(r)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	return fn(recv, args)
}

func (n *listNode) eval(r *resolver) (any, error) {
	items := make([]any, len(n.items))
	for i, item := range n.items {
		v, err := item.eval(r)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}
