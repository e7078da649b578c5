package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenAnd
	tokenOr
	tokenNot
	tokenIn
	tokenTrue
	tokenFalse
	tokenNone
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of expression"
	case tokenIdent:
		return "identifier"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenAnd:
		return "'and'"
	case tokenOr:
		return "'or'"
	case tokenNot:
		return "'not'"
	case tokenIn:
		return "'in'"
	case tokenTrue:
		return "'true'"
	case tokenFalse:
		return "'false'"
	case tokenNone:
		return "'none'"
	case tokenEq:
		return "'=='"
	case tokenNe:
		return "'!='"
	case tokenLt:
		return "'<'"
	case tokenLe:
		return "'<='"
	case tokenGt:
		return "'>'"
	case tokenGe:
		return "'>='"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	case tokenComma:
		return "','"
	}
	return "unknown token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// keywords are matched before the generic identifier pattern so that
// "in" and "not" are never swallowed as identifiers. Both "none" and
// "null" spell the null literal.
var keywords = map[string]tokenKind{
	"and":   tokenAnd,
	"or":    tokenOr,
	"not":   tokenNot,
	"in":    tokenIn,
	"true":  tokenTrue,
	"false": tokenFalse,
	"none":  tokenNone,
	"null":  tokenNone,
}

type lexError struct {
	pos int
	msg string
}

func (e *lexError) Error() string {
	return fmt.Sprintf("%s at position %d", e.msg, e.pos)
}

// lex scans an expression into tokens using longest-match scanning.
// Multi-character operators are matched before single-character ones,
// and keywords before identifiers.
func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		if unicode.IsSpace(r) {
			i++
			continue
		}

		// Two-character operators first (longest match).
		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			switch two {
			case "==":
				tokens = append(tokens, token{tokenEq, two, i})
				i += 2
				continue
			case "!=":
				tokens = append(tokens, token{tokenNe, two, i})
				i += 2
				continue
			case "<=":
				tokens = append(tokens, token{tokenLe, two, i})
				i += 2
				continue
			case ">=":
				tokens = append(tokens, token{tokenGe, two, i})
				i += 2
				continue
			}
		}

		switch r {
		case '<':
			tokens = append(tokens, token{tokenLt, "<", i})
			i++
			continue
		case '>':
			tokens = append(tokens, token{tokenGt, ">", i})
			i++
			continue
		case '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
			continue
		case ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
			continue
		case '[':
			tokens = append(tokens, token{tokenLBracket, "[", i})
			i++
			continue
		case ']':
			tokens = append(tokens, token{tokenRBracket, "]", i})
			i++
			continue
		case ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
			continue
		case '\'', '"':
			text, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokenString, text, i})
			i = next
			continue
		}

		if unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])) {
			text, next := lexNumber(runes, i)
			tokens = append(tokens, token{tokenNumber, text, i})
			i = next
			continue
		}

		if isIdentStart(r) {
			text, next := lexWord(runes, i)
			if kind, ok := keywords[text]; ok {
				tokens = append(tokens, token{kind, text, i})
			} else {
				tokens = append(tokens, token{tokenIdent, text, i})
			}
			i = next
			continue
		}

		return nil, &lexError{pos: i, msg: fmt.Sprintf("unexpected character %q", r)}
	}

	tokens = append(tokens, token{tokenEOF, "", len(runes)})
	return tokens, nil
}

// lexString scans a single- or double-quoted string starting at the
// opening quote. Returns the unquoted text and the index past the
// closing quote.
func lexString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var sb strings.Builder
	i := start + 1
	for i < len(runes) {
		r := runes[i]
		if r == quote {
			return sb.String(), i + 1, nil
		}
		if r == '\\' && i+1 < len(runes) && (runes[i+1] == quote || runes[i+1] == '\\') {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		sb.WriteRune(r)
		i++
	}
	return "", 0, &lexError{pos: start, msg: "unterminated string"}
}

// lexNumber scans an optionally signed decimal number.
func lexNumber(runes []rune, start int) (string, int) {
	i := start
	if runes[i] == '-' {
		i++
	}
	for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
		i++
	}
	return string(runes[start:i]), i
}

// lexWord scans an identifier, including dotted-path segments
// ("data.status", "agent_id.startswith").
func lexWord(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && (isIdentPart(runes[i]) || runes[i] == '.') {
		i++
	}
	return string(runes[start:i]), i
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
