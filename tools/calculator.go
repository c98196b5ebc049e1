package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidExpression marks calculator input that cannot be parsed or
// evaluated. The executor maps it to its own error kind so the model sees a
// distinct failure.
var ErrInvalidExpression = errors.New("invalid expression")

// Calculate evaluates a mathematical expression string and returns the result
// as text. Supported: numbers, + - * / %, ** for exponentiation, parentheses
// and unary minus. Anything else is rejected; no code is ever evaluated.
func Calculate(expression string) (string, error) {
	p := &exprParser{input: expression}
	result, err := p.parseExpr()
	if err != nil {
		return "", err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return "", fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidExpression, p.input[p.pos], p.pos)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return "", fmt.Errorf("%w: result is not a finite number", ErrInvalidExpression)
	}
	return formatNumber(result), nil
}

// formatNumber renders integral results without a decimal point (84, not
// 84.000000) and everything else with minimal digits.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// exprParser is a recursive-descent parser over the expression grammar:
//
//	expr   := term  (('+' | '-') term)*
//	term   := unary (('*' | '/' | '%') unary)*
//	unary  := ('-' | '+') unary | power
//	power  := primary ('**' unary)?
//	primary:= number | '(' expr ')'
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		// '**' belongs to parsePower, not to multiplication.
		if op == '*' && strings.HasPrefix(p.input[p.pos:], "**") {
			return 0, fmt.Errorf("%w: unexpected '**' at position %d", ErrInvalidExpression, p.pos)
		}
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("%w: modulo by zero", ErrInvalidExpression)
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if strings.HasPrefix(p.input[p.pos:], "**") {
		p.pos += 2
		// Right-associative: 2**3**2 is 2**(3**2).
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	}

	if p.peek() == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		p.pos++
		return v, nil
	}

	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	seenDot := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("%w: expected a number at position %d", ErrInvalidExpression, start)
	}

	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed number %q", ErrInvalidExpression, p.input[start:p.pos])
	}
	return v, nil
}
