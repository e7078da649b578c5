package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	kerrors "github.com/durapensa/ksi-go/pkg/ksi/errors"
)

// node is a parsed expression tree node. eval returns the node's value
// against a resolver; the boolean result of a whole condition is the
// truthiness of the root node's value.
type node interface {
	eval(r *resolver) (any, error)
}

type orNode struct{ terms []node }
type andNode struct{ terms []node }
type notNode struct{ inner node }

type cmpNode struct {
	left  node
	op    string
	right node
}

type literalNode struct{ value any }

type pathNode struct{ segments []string }

type callNode struct {
	segments []string // receiver path, may be empty for bare calls
	fn       string
	args     []node
}

type listNode struct{ items []node }

// parseExpr parses a condition expression into a tree. A non-empty
// leftover token stream after the top-level expression is a syntax
// error.
func parseExpr(input string) (node, error) {
	tokens, err := lex(input)
	if err != nil {
		pos := 0
		msg := err.Error()
		var le *lexError
		if errors.As(err, &le) {
			pos = le.pos
			msg = le.msg
		}
		return nil, &kerrors.MalformedConditionError{Expr: input, Message: msg, Pos: pos}
	}

	p := &parser{input: input, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, p.errorf("unexpected %s after expression", p.peek().kind)
	}
	return root, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, p.errorf("expected %s, got %s", kind, t.kind)
	}
	return p.next(), nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &kerrors.MalformedConditionError{
		Expr:    p.input,
		Message: fmt.Sprintf(format, args...),
		Pos:     p.peek().pos,
	}
}

// parseOr parses: and-expr ('or' and-expr)*
func (p *parser) parseOr() (node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []node{first}
	for p.peek().kind == tokenOr {
		p.next()
		term, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &orNode{terms: terms}, nil
}

// parseAnd parses: not-expr ('and' not-expr)*
func (p *parser) parseAnd() (node, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	terms := []node{first}
	for p.peek().kind == tokenAnd {
		p.next()
		term, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &andNode{terms: terms}, nil
}

// parseNot parses: 'not'? comparison
//
// A 'not' directly followed by 'in' belongs to the comparison operator
// "not in" and is left for parseComparison to consume.
func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokenNot && p.peekAt(1).kind != tokenIn {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

// parseComparison parses: primary (cmp-op primary)?
// with cmp-op in {==, !=, <, <=, >, >=, in, not in}.
func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	var op string
	switch p.peek().kind {
	case tokenEq, tokenNe, tokenLt, tokenLe, tokenGt, tokenGe:
		op = p.next().text
	case tokenIn:
		p.next()
		op = "in"
	case tokenNot:
		if p.peekAt(1).kind != tokenIn {
			return nil, p.errorf("expected 'in' after 'not' in comparison")
		}
		p.next()
		p.next()
		op = "not in"
	default:
		return left, nil
	}

	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &cmpNode{left: left, op: op, right: right}, nil
}

// parsePrimary parses: literal | identifier | call | '(' or-expr ')' | '[' list ']'
func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokenNumber:
		p.next()
		return p.numberLiteral(t)

	case tokenString:
		p.next()
		return &literalNode{value: t.text}, nil

	case tokenTrue:
		p.next()
		return &literalNode{value: true}, nil

	case tokenFalse:
		p.next()
		return &literalNode{value: false}, nil

	case tokenNone:
		p.next()
		return &literalNode{value: nil}, nil

	case tokenLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokenLBracket:
		return p.parseList()

	case tokenIdent:
		p.next()
		segments := strings.Split(t.text, ".")
		if p.peek().kind == tokenLParen {
			return p.parseCall(segments)
		}
		return &pathNode{segments: segments}, nil
	}

	return nil, p.errorf("unexpected %s", t.kind)
}

// parseList parses: '[' (or-expr (',' or-expr)*)? ']'
func (p *parser) parseList() (node, error) {
	if _, err := p.expect(tokenLBracket); err != nil {
		return nil, err
	}

	var items []node
	if p.peek().kind != tokenRBracket {
		for {
			item, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.peek().kind != tokenComma {
				break
			}
			p.next()
		}
	}

	if _, err := p.expect(tokenRBracket); err != nil {
		return nil, err
	}
	return &listNode{items: items}, nil
}

// parseCall parses the argument list of a predicate function call.
// The final dotted segment is the function name; the preceding
// segments are the receiver path ("agent_id.startswith('research')").
func (p *parser) parseCall(segments []string) (node, error) {
	fn := segments[len(segments)-1]
	receiver := segments[:len(segments)-1]

	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}

	var args []node
	if p.peek().kind != tokenRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokenComma {
				break
			}
			p.next()
		}
	}

	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return &callNode{segments: receiver, fn: fn, args: args}, nil
}

func (p *parser) numberLiteral(t token) (node, error) {
	if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
		return &literalNode{value: i}, nil
	}
	if f, err := strconv.ParseFloat(t.text, 64); err == nil {
		return &literalNode{value: f}, nil
	}
	return nil, &kerrors.MalformedConditionError{
		Expr:    p.input,
		Message: fmt.Sprintf("invalid number %q", t.text),
		Pos:     t.pos,
	}
}
