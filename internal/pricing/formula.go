package pricing

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// expr is a compiled pricing formula. Formulas are parsed once at rule load
// so evaluation per quote is a pure tree walk.
type expr interface {
	eval(base float64) float64
}

type literal struct {
	value float64
}

func (l literal) eval(float64) float64 { return l.value }

type baseRef struct{}

func (baseRef) eval(base float64) float64 { return base }

type binaryOp struct {
	op    byte
	left  expr
	right expr
}

func (b binaryOp) eval(base float64) float64 {
	l := b.left.eval(base)
	r := b.right.eval(base)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		if r == 0 {
			return 0
		}
		return l / r
	}
	return 0
}

// compileFormula parses a rule formula into an expression tree. The tokens
// "cost" and "price" both refer to the product base cost; everything else must
// be numbers, + - * / and parentheses. A bare numeric literal is a fixed price.
func compileFormula(formula string) (expr, error) {
	cleaned := sanitizeFormula(formula)
	if cleaned == "" {
		return nil, fmt.Errorf("empty formula %q", formula)
	}

	p := &formulaParser{input: cleaned}
	tree, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", formula, err)
	}
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("formula %q: unexpected %q at offset %d", formula, p.input[p.pos], p.pos)
	}
	return tree, nil
}

// sanitizeFormula normalizes the base-cost tokens to "c" and strips anything
// that is not part of a restricted arithmetic expression.
func sanitizeFormula(formula string) string {
	s := strings.ToLower(strings.TrimSpace(formula))
	s = strings.ReplaceAll(s, "cost", "c")
	s = strings.ReplaceAll(s, "price", "c")

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == 'c':
			b.WriteRune(r)
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '(' || r == ')':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formulaParser is a tiny recursive-descent parser over the sanitized input.
type formulaParser struct {
	input string
	pos   int
}

func (p *formulaParser) parseExpr() (expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.input) {
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			break
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryOp{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *formulaParser) parseTerm() (expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.input) {
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			break
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryOp{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *formulaParser) parseFactor() (expr, error) {
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	ch := p.input[p.pos]
	switch {
	case ch == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil

	case ch == 'c':
		p.pos++
		return baseRef{}, nil

	case ch >= '0' && ch <= '9' || ch == '.':
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
			p.pos++
		}
		value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p.input[start:p.pos])
		}
		return literal{value: value}, nil

	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", ch, p.pos)
	}
}
