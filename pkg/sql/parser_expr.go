package sql

// Expression parsing: operator-precedence (Pratt) parsing over the boolean,
// comparison, and arithmetic operators, plus the SQL-specific postfix forms
// (IN, BETWEEN, LIKE, IS [NOT] NULL) that don't fit a plain binary-operator
// table.
//
// Precedence, lowest to highest:
//
//	OR
//	AND
//	NOT (unary)
//	comparison (= != < <= > >= IN BETWEEN LIKE ILIKE IS)
//	concatenation (||)
//	additive (+ -)
//	multiplicative (* / %)
//	unary (- +)
//	primary (literal, column ref, function call, paren, case, cast, exists)

type precedence int

const (
	precLowest precedence = iota
	precOr
	precAnd
	precComparison
	precConcat
	precAdditive
	precMultiplicative
	precUnary
)

func (p *Parser) parseExpression() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for p.check(TOKEN_OR) {
		p.nextToken()
		right := p.parseAnd()
		left = &BinaryExpr{Left: left, Op: "OR", Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseNot()
	for p.check(TOKEN_AND) {
		p.nextToken()
		right := p.parseNot()
		left = &BinaryExpr{Left: left, Op: "AND", Right: right}
	}
	return left
}

func (p *Parser) parseNot() Expr {
	if p.match(TOKEN_NOT) {
		return &UnaryExpr{Op: "NOT", Expr: p.parseNot()}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() Expr {
	left := p.parseConcat()

	for {
		switch {
		case p.check(TOKEN_EQ), p.check(TOKEN_NEQ), p.check(TOKEN_LT),
			p.check(TOKEN_LE), p.check(TOKEN_GT), p.check(TOKEN_GE):
			op := p.token.Literal
			p.nextToken()
			right := p.parseConcat()
			left = &BinaryExpr{Left: left, Op: op, Right: right}
			continue

		case p.check(TOKEN_IN):
			p.nextToken()
			left = p.finishIn(left, false)
			continue

		case p.check(TOKEN_NOT) && p.checkPeek(TOKEN_IN):
			p.nextToken()
			p.nextToken()
			left = p.finishIn(left, true)
			continue

		case p.check(TOKEN_BETWEEN):
			p.nextToken()
			left = p.finishBetween(left, false)
			continue

		case p.check(TOKEN_NOT) && p.checkPeek(TOKEN_BETWEEN):
			p.nextToken()
			p.nextToken()
			left = p.finishBetween(left, true)
			continue

		case p.check(TOKEN_LIKE):
			p.nextToken()
			left = &LikeExpr{Expr: left, Pattern: p.parseConcat()}
			continue

		case p.check(TOKEN_ILIKE):
			p.nextToken()
			left = &LikeExpr{Expr: left, Pattern: p.parseConcat(), ILike: true}
			continue

		case p.check(TOKEN_NOT) && p.checkPeek(TOKEN_LIKE):
			p.nextToken()
			p.nextToken()
			left = &LikeExpr{Expr: left, Not: true, Pattern: p.parseConcat()}
			continue

		case p.check(TOKEN_IS):
			p.nextToken()
			not := p.match(TOKEN_NOT)
			p.expect(TOKEN_NULL)
			left = &IsNullExpr{Expr: left, Not: not}
			continue
		}
		break
	}

	return left
}

func (p *Parser) finishIn(left Expr, not bool) Expr {
	in := &InExpr{Expr: left, Not: not}
	p.expect(TOKEN_LPAREN)
	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		in.Query = p.parseStatement()
	} else {
		in.Values = p.parseExpressionList()
	}
	p.expect(TOKEN_RPAREN)
	return in
}

func (p *Parser) finishBetween(left Expr, not bool) Expr {
	low := p.parseConcat()
	p.expect(TOKEN_AND)
	high := p.parseConcat()
	return &BetweenExpr{Expr: left, Not: not, Low: low, High: high}
}

func (p *Parser) parseConcat() Expr {
	left := p.parseAdditive()
	for p.check(TOKEN_CONCAT) {
		p.nextToken()
		right := p.parseAdditive()
		left = &BinaryExpr{Left: left, Op: "||", Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.check(TOKEN_PLUS) || p.check(TOKEN_MINUS) {
		op := p.token.Literal
		p.nextToken()
		right := p.parseMultiplicative()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	for p.check(TOKEN_STAR) || p.check(TOKEN_SLASH) || p.check(TOKEN_PERCENT) {
		op := p.token.Literal
		p.nextToken()
		right := p.parseUnary()
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.check(TOKEN_MINUS) || p.check(TOKEN_PLUS) {
		op := p.token.Literal
		p.nextToken()
		return &UnaryExpr{Op: op, Expr: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() Expr {
	switch {
	case p.check(TOKEN_NUMBER):
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case p.check(TOKEN_STRING):
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case p.check(TOKEN_TRUE):
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "true"}

	case p.check(TOKEN_FALSE):
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "false"}

	case p.check(TOKEN_NULL):
		p.nextToken()
		return &Literal{Type: LiteralNull}

	case p.check(TOKEN_CASE):
		return p.parseCaseExpr()

	case p.check(TOKEN_CAST):
		return p.parseCastExpr()

	case p.check(TOKEN_EXISTS):
		return p.parseExistsExpr(false)

	case p.check(TOKEN_NOT) && p.checkPeek(TOKEN_EXISTS):
		p.nextToken()
		return p.parseExistsExpr(true)

	case p.check(TOKEN_LPAREN):
		return p.parseParenExpr()

	case p.check(TOKEN_STAR):
		p.nextToken()
		return &StarExpr{}

	case p.check(TOKEN_IDENT):
		return p.parseIdentOrCall()
	}

	p.addError("unexpected token in expression: " + p.token.Type.String())
	tok := p.token
	if tok.Type != TOKEN_EOF {
		p.nextToken()
	}
	return &Literal{Type: LiteralNull, Value: tok.Literal}
}

// parseIdentOrCall parses a column reference (possibly table-qualified, where
// the qualifier may itself be a dotted table name such as gh.issues.state) or
// a function call, disambiguated by whether an LPAREN follows.
func (p *Parser) parseIdentOrCall() Expr {
	name := p.token.Literal
	p.nextToken()

	if p.check(TOKEN_DOT) {
		p.nextToken()
		if p.check(TOKEN_STAR) {
			p.nextToken()
			return &StarExpr{Table: name}
		}
		col := p.token.Literal
		p.expect(TOKEN_IDENT)
		if p.check(TOKEN_DOT) && p.checkPeek(TOKEN_IDENT) {
			p.nextToken()
			name = name + "." + col
			col = p.token.Literal
			p.nextToken()
		}
		return &ColumnRef{Table: name, Column: col}
	}

	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(name)
	}

	return &ColumnRef{Column: name}
}

func (p *Parser) parseFuncCall(name string) Expr {
	p.expect(TOKEN_LPAREN)
	call := &FuncCall{Name: name}

	if p.match(TOKEN_STAR) {
		call.Star = true
	} else if !p.check(TOKEN_RPAREN) {
		if p.match(TOKEN_DISTINCT) {
			call.Distinct = true
		}
		call.Args = p.parseExpressionList()
	}
	p.expect(TOKEN_RPAREN)

	if p.match(TOKEN_FILTER) {
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_WHERE)
		call.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}

	if p.match(TOKEN_OVER) {
		call.Window = p.parseWindowSpec()
	}

	return call
}

func (p *Parser) parseWindowSpec() *WindowSpec {
	if p.check(TOKEN_IDENT) {
		spec := &WindowSpec{Name: p.token.Literal}
		p.nextToken()
		return spec
	}

	p.expect(TOKEN_LPAREN)
	spec := &WindowSpec{}

	if p.match(TOKEN_PARTITION) {
		p.expect(TOKEN_BY)
		spec.PartitionBy = p.parseExpressionList()
	}

	if p.match(TOKEN_ORDER) {
		p.expect(TOKEN_BY)
		spec.OrderBy = p.parseOrderByList()
	}

	if p.check(TOKEN_ROWS) || p.check(TOKEN_RANGE) || p.check(TOKEN_GROUPS) {
		spec.Frame = p.parseFrameSpec()
	}

	p.expect(TOKEN_RPAREN)
	return spec
}

func (p *Parser) parseFrameSpec() *FrameSpec {
	frame := &FrameSpec{}
	switch {
	case p.match(TOKEN_ROWS):
		frame.Type = FrameRows
	case p.match(TOKEN_RANGE):
		frame.Type = FrameRange
	case p.match(TOKEN_GROUPS):
		frame.Type = FrameGroups
	}

	if p.match(TOKEN_BETWEEN) {
		frame.Start = p.parseFrameBound()
		p.expect(TOKEN_AND)
		frame.End = p.parseFrameBound()
	} else {
		frame.Start = p.parseFrameBound()
	}
	return frame
}

func (p *Parser) parseFrameBound() *FrameBound {
	switch {
	case p.match(TOKEN_UNBOUNDED):
		if p.match(TOKEN_PRECEDING) {
			return &FrameBound{Type: FrameUnboundedPreceding}
		}
		p.expect(TOKEN_FOLLOWING)
		return &FrameBound{Type: FrameUnboundedFollowing}

	case p.match(TOKEN_CURRENT):
		p.expect(TOKEN_ROW)
		return &FrameBound{Type: FrameCurrentRow}

	default:
		offset := p.parseAdditive()
		if p.match(TOKEN_PRECEDING) {
			return &FrameBound{Type: FrameExprPreceding, Offset: offset}
		}
		p.expect(TOKEN_FOLLOWING)
		return &FrameBound{Type: FrameExprFollowing, Offset: offset}
	}
}
