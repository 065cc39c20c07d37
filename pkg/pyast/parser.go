// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyast

import "fmt"

// Parse tokenizes and parses src (the contents of a Python build script)
// into a module-level Block. Expressions outside the restricted literal
// grammar are parsed (so the file structure is understood well enough to
// locate a setup() call and backtrack variable assignments) but recorded
// as ExprOther rather than evaluated.
func Parse(src string) (*Block, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	mod := &Block{}
	stmts, err := p.parseSuite(mod)
	if err != nil {
		return nil, err
	}
	mod.Stmts = stmts
	return mod, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return token{kind: tokEOF}
}

func (p *parser) peekAt(n int) token {
	i := p.pos + n
	if i < len(p.toks) {
		return p.toks[i]
	}
	return token{kind: tokEOF}
}

func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) atOp(text string) bool {
	t := p.cur()
	return t.kind == tokOp && t.text == text
}

func (p *parser) atName(text string) bool {
	t := p.cur()
	return t.kind == tokName && t.text == text
}

func (p *parser) atAnyName(texts ...string) bool {
	for _, t := range texts {
		if p.atName(t) {
			return true
		}
	}
	return false
}

//nolint:gochecknoglobals // lookup set, not mutated.
var compoundKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "with": true,
	"try": true, "def": true, "class": true,
}

//nolint:gochecknoglobals // lookup set, not mutated.
var continuationKeywords = map[string]bool{
	"elif": true, "else": true, "except": true, "finally": true,
}

//nolint:gochecknoglobals // lookup set, not mutated.
var simpleLeaderKeywords = map[string]bool{
	"pass": true, "break": true, "continue": true, "return": true,
	"import": true, "from": true, "global": true, "nonlocal": true,
	"del": true, "raise": true, "assert": true,
}

// parseSuite parses statements belonging to block until a DEDENT or EOF.
func (p *parser) parseSuite(block *Block) ([]*Stmt, error) {
	var stmts []*Stmt
	for {
		for p.cur().kind == tokNewline {
			p.advance()
		}
		switch p.cur().kind {
		case tokDedent:
			p.advance()
			return stmts, nil
		case tokEOF:
			return stmts, nil
		}
		stmtSlice, err := p.parseStatement(block)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmtSlice...)
	}
}

func (p *parser) parseStatement(block *Block) ([]*Stmt, error) {
	t := p.cur()
	name := t.text
	if t.kind == tokName && name == "async" {
		// async def/for/with -- peel off the modifier, the next keyword
		// drives the real compound-statement shape.
		p.advance()
		name = p.cur().text
	}
	if t.kind == tokName && compoundKeywords[name] {
		stmt, err := p.parseCompound(block)
		if err != nil {
			return nil, err
		}
		return []*Stmt{stmt}, nil
	}
	// A logical line of ";"-separated simple statements belongs directly
	// to the enclosing block -- it introduces no new lexical scope.
	return p.parseSimpleStmts(block)
}

// parseCompound parses a header ":" suite, followed by any chained
// elif/else/except/finally clauses, as a single StmtCompound.
func (p *parser) parseCompound(block *Block) (*Stmt, error) {
	line := p.cur().line
	stmt := &Stmt{Kind: StmtCompound, Line: line}
	for {
		if err := p.skipHeaderToColon(); err != nil {
			return nil, err
		}
		suite := &Block{Parent: block}
		if p.cur().kind == tokNewline {
			p.advance()
			if p.cur().kind == tokIndent {
				p.advance()
				stmts, err := p.parseSuite(suite)
				if err != nil {
					return nil, err
				}
				suite.Stmts = stmts
			}
		} else {
			// One-liner suite, e.g. "if x: pass".
			stmts, err := p.parseSimpleStmts(suite)
			if err != nil {
				return nil, err
			}
			suite.Stmts = stmts
		}
		stmt.Suites = append(stmt.Suites, suite)

		for p.cur().kind == tokNewline {
			p.advance()
		}
		if p.cur().kind == tokName && continuationKeywords[p.cur().text] {
			continue
		}
		return stmt, nil
	}
}

// skipHeaderToColon consumes tokens (tracking bracket depth) up to and
// including the top-level ":" that ends a compound statement's header.
func (p *parser) skipHeaderToColon() error {
	depth := 0
	for {
		t := p.cur()
		switch t.kind {
		case tokEOF, tokNewline:
			return fmt.Errorf("pyast: line %d: unterminated compound-statement header", t.line)
		case tokOp:
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ":":
				if depth == 0 {
					p.advance()
					return nil
				}
			}
		}
		p.advance()
	}
}

func (p *parser) parseSimpleStmts(block *Block) ([]*Stmt, error) {
	var stmts []*Stmt
	for {
		if p.cur().kind == tokNewline || p.cur().kind == tokEOF || p.cur().kind == tokDedent {
			break
		}
		stmt, err := p.parseOneSimpleStmt()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.atOp(";") {
			p.advance()
			continue
		}
		break
	}
	if p.cur().kind == tokNewline {
		p.advance()
	}
	_ = block
	return stmts, nil
}

func (p *parser) parseOneSimpleStmt() (*Stmt, error) {
	line := p.cur().line
	if p.cur().kind == tokName && simpleLeaderKeywords[p.cur().text] {
		p.skipToStmtEnd()
		return &Stmt{Kind: StmtOther, Line: line}, nil
	}

	first, err := p.parseTestListStar()
	if err != nil {
		return nil, err
	}

	switch {
	case p.atOp("="):
		var targets []*Expr
		exprs := []*Expr{first}
		for p.atOp("=") {
			p.advance()
			e, err := p.parseTestListStar()
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
		targets, value := exprs[:len(exprs)-1], exprs[len(exprs)-1]
		var names []string
		allSimple := true
		for _, tgt := range targets {
			if tgt.Kind == ExprName {
				names = append(names, tgt.Name)
			} else {
				allSimple = false
			}
		}
		if !allSimple {
			return &Stmt{Kind: StmtOther, Line: line}, nil
		}
		return &Stmt{Kind: StmtAssign, Line: line, Targets: names, Value: value}, nil
	case p.isAugAssignOp():
		p.advance()
		if _, err := p.parseTestListStar(); err != nil {
			return nil, err
		}
		return &Stmt{Kind: StmtOther, Line: line}, nil
	default:
		return &Stmt{Kind: StmtExpr, Line: line, Expr: first}, nil
	}
}

func (p *parser) isAugAssignOp() bool {
	if p.cur().kind != tokOp {
		return false
	}
	switch p.cur().text {
	case "+=", "-=", "*=", "/=", "%=", "**=", "//=", "&=", "|=", "^=", ">>=", "<<=", ":=":
		return true
	}
	return false
}

// skipToStmtEnd consumes tokens until the end of the current simple
// statement (";" or NEWLINE/DEDENT/EOF at bracket depth 0).
func (p *parser) skipToStmtEnd() {
	depth := 0
	for {
		t := p.cur()
		switch t.kind {
		case tokEOF, tokNewline, tokDedent:
			return
		case tokOp:
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ";":
				if depth == 0 {
					return
				}
			}
		}
		p.advance()
	}
}

// parseTestListStar parses a comma-separated list of expressions (used
// both for assignment targets and implicit-tuple values), collapsing a
// single bare item to itself and multiple items (or one with a trailing
// comma) to an ExprTuple.
func (p *parser) parseTestListStar() (*Expr, error) {
	line := p.cur().line
	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}
	elts := []*Expr{first}
	trailingComma := false
	for p.atOp(",") {
		p.advance()
		trailingComma = true
		if p.atStatementTerminator() {
			break
		}
		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
		trailingComma = false
	}
	_ = trailingComma
	return &Expr{Kind: ExprTuple, Line: line, Elts: elts}, nil
}

func (p *parser) atStatementTerminator() bool {
	switch p.cur().kind {
	case tokNewline, tokEOF, tokDedent:
		return true
	}
	return p.atOp("=") || p.atOp(":") || p.atOp(";") || p.atOp(")") || p.atOp("]") || p.atOp("}")
}
