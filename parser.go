package permit

import (
	"fmt"
)

// ============================================================================
// EXPRESSION PARSER
// ============================================================================

// ParseExpression compiles a policy expression into its AST. Binding
// strength, tightest first: comparison/in > not > and > or, so "not a == 1"
// negates the whole comparison, as in Python. Parentheses override as usual.
// A parse failure is a configuration error; callers treat the policy as
// evaluating to false.
func ParseExpression(src string) (Expr, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("permit: expression position %d: unexpected trailing %q", p.peek().pos, p.peek().String())
	}
	return e, nil
}

type parser struct {
	toks []token
	idx  int
}

func (p *parser) peek() token { return p.toks[p.idx] }

func (p *parser) advance() token {
	t := p.toks[p.idx]
	if t.kind != tokEOF {
		p.idx++
	}
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	switch t := p.peek(); t.kind {
	case tokOp:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &CompareExpr{Op: t.text, Left: left, Right: right}, nil
	case tokIn:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &MembershipExpr{Needle: left, Haystack: right}, nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch t := p.peek(); t.kind {
	case tokLParen:
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("permit: expression position %d: expected ')'", p.peek().pos)
		}
		p.advance()
		return e, nil
	case tokLBracket:
		return p.parseList()
	case tokString:
		p.advance()
		return &LiteralExpr{Value: t.text}, nil
	case tokNumber:
		p.advance()
		return &LiteralExpr{Value: t.num}, nil
	case tokBool:
		p.advance()
		return &LiteralExpr{Value: t.text == "true"}, nil
	case tokIdent:
		p.advance()
		return &AttrExpr{Path: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("permit: expression position %d: unexpected end of expression", t.pos)
	default:
		return nil, fmt.Errorf("permit: expression position %d: unexpected %q", t.pos, t.String())
	}
}

func (p *parser) parseList() (Expr, error) {
	open := p.advance() // '['
	items := make([]Expr, 0, 4)
	if p.peek().kind == tokRBracket {
		p.advance()
		return &ListExpr{Items: items}, nil
	}
	for {
		switch t := p.peek(); t.kind {
		case tokString:
			p.advance()
			items = append(items, &LiteralExpr{Value: t.text})
		case tokNumber:
			p.advance()
			items = append(items, &LiteralExpr{Value: t.num})
		case tokBool:
			p.advance()
			items = append(items, &LiteralExpr{Value: t.text == "true"})
		case tokIdent:
			p.advance()
			items = append(items, &AttrExpr{Path: t.text})
		default:
			return nil, fmt.Errorf("permit: expression position %d: expected list element", t.pos)
		}
		switch p.peek().kind {
		case tokComma:
			p.advance()
		case tokRBracket:
			p.advance()
			return &ListExpr{Items: items}, nil
		default:
			return nil, fmt.Errorf("permit: expression position %d: unterminated list started at %d", p.peek().pos, open.pos)
		}
	}
}
