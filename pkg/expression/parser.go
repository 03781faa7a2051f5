package expression

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenString
	tokenIdent
	tokenLBracket
	tokenRBracket
	tokenComma
	tokenPipe
	tokenDot
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func (t token) String() string {
	switch t.kind {
	case tokenEOF:
		return "end of expression"
	case tokenString:
		return fmt.Sprintf("string %q", t.value)
	case tokenIdent:
		return fmt.Sprintf("identifier %q", t.value)
	default:
		return fmt.Sprintf("%q", t.value)
	}
}

func tokenize(input string) ([]token, error) {
	var tokens []token

	runes := []rune(input)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '[':
			tokens = append(tokens, token{kind: tokenLBracket, value: "[", pos: i})
			i++
		case r == ']':
			tokens = append(tokens, token{kind: tokenRBracket, value: "]", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokenComma, value: ",", pos: i})
			i++
		case r == '|':
			tokens = append(tokens, token{kind: tokenPipe, value: "|", pos: i})
			i++
		case r == '.':
			tokens = append(tokens, token{kind: tokenDot, value: ".", pos: i})
			i++
		case r == '\'' || r == '"':
			value, next, err := scanString(runes, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokenString, value: value, pos: i})
			i = next
		case isIdentRune(r, true):
			start := i
			for i < len(runes) && isIdentRune(runes[i], false) {
				i++
			}

			tokens = append(tokens, token{kind: tokenIdent, value: string(runes[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
		}
	}

	return append(tokens, token{kind: tokenEOF, pos: len(runes)}), nil
}

func scanString(runes []rune, start int) (string, int, error) {
	quote := runes[start]

	var b strings.Builder

	for i := start + 1; i < len(runes); i++ {
		switch r := runes[i]; {
		case r == '\\' && i+1 < len(runes):
			i++
			b.WriteRune(runes[i])
		case r == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteRune(r)
		}
	}

	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func isIdentRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}

	return !first && unicode.IsDigit(r)
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses an expression into its AST. An empty expression parses to Null.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return Null{}, nil
	}

	tokens, err := tokenize(expr)
	if err != nil {
		return nil, &Error{Expr: expr, Reason: err.Error()}
	}

	p := &parser{tokens: tokens}

	node, err := p.parseExpression()
	if err != nil {
		return nil, &Error{Expr: expr, Reason: err.Error()}
	}

	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}

	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s at position %d, got %s", what, t.pos, t)
	}

	return t, nil
}

func (p *parser) parseExpression() (Node, error) {
	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	node := operand

	if p.peek().kind == tokenPipe {
		p.next()

		op, err := p.expect(tokenIdent, "operator")
		if err != nil {
			return nil, err
		}

		switch op.value {
		case "task":
			node = TaskRef{Operand: operand}
		case "groups":
			node = GroupRef{Operand: operand}
		default:
			return nil, fmt.Errorf("unknown operator %q", op.value)
		}
	}

	if t := p.peek(); t.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %s at position %d", t, t.pos)
	}

	return node, nil
}

func (p *parser) parseOperand() (Node, error) {
	t := p.next()

	switch t.kind {
	case tokenString:
		return Literal{Value: t.value}, nil
	case tokenLBracket:
		return p.parseList()
	case tokenIdent:
		switch t.value {
		case "null":
			return Null{}, nil
		case "info":
			return p.parsePath()
		default:
			return nil, fmt.Errorf("unknown identifier %q", t.value)
		}
	default:
		return nil, fmt.Errorf("unexpected %s at position %d", t, t.pos)
	}
}

func (p *parser) parseList() (Node, error) {
	items := make([]string, 0)

	if p.peek().kind == tokenRBracket {
		p.next()

		return List{Items: items}, nil
	}

	for {
		item, err := p.expect(tokenString, "string")
		if err != nil {
			return nil, err
		}

		items = append(items, item.value)

		sep := p.next()

		switch sep.kind {
		case tokenComma:
			continue
		case tokenRBracket:
			return List{Items: items}, nil
		default:
			return nil, fmt.Errorf("expected \",\" or \"]\" at position %d, got %s", sep.pos, sep)
		}
	}
}

func (p *parser) parsePath() (Node, error) {
	segments := make([]string, 0, 3)

	for p.peek().kind == tokenDot {
		p.next()

		segment, err := p.expect(tokenIdent, "path segment")
		if err != nil {
			return nil, err
		}

		segments = append(segments, segment.value)
	}

	if len(segments) < 2 {
		return nil, fmt.Errorf("incomplete path info.%s", strings.Join(segments, "."))
	}

	fields, ok := pathFields[segments[0]]
	if !ok {
		return nil, fmt.Errorf("unknown identifier info.%s", segments[0])
	}

	path := Path{Root: segments[0], Field: segments[1]}

	if !fields[path.Field] {
		return nil, fmt.Errorf("unknown identifier info.%s.%s", path.Root, path.Field)
	}

	switch {
	case path.Field == fieldMeta && len(segments) == 3:
		path.Key = segments[2]
	case path.Field == fieldMeta:
		return nil, fmt.Errorf("info.%s.meta needs exactly one key", path.Root)
	case len(segments) != 2:
		return nil, fmt.Errorf("unknown identifier info.%s", strings.Join(segments, "."))
	}

	return path, nil
}
