// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyast

// ExprKind tags the restricted expression grammar this package evaluates.
type ExprKind int

const (
	ExprName ExprKind = iota
	ExprAttribute
	ExprCall
	ExprConstStr
	ExprConstNum
	ExprConstBool
	ExprConstNone
	ExprList
	ExprTuple
	ExprDict
	ExprBinOp  // only "+" (string/list concatenation) is evaluated as literal
	ExprUnary  // only unary "-" on a numeric literal is evaluated as literal
	ExprOther  // anything outside the restricted grammar: f-strings, subscripts,
	           // comprehensions, comparisons, etc. -- never literal.
)

// Expr is a node in the restricted expression AST. Only the fields
// relevant to Kind are populated.
type Expr struct {
	Kind ExprKind
	Line int

	Name string // ExprName, ExprAttribute (Attr)

	Value *Expr  // ExprAttribute: the base being accessed
	Attr  string // ExprAttribute: the attribute name

	Func     *Expr    // ExprCall
	Args     []*Expr  // ExprCall
	Keywords []Keyword // ExprCall

	Str   string // ExprConstStr
	Num   float64 // ExprConstNum
	Bool  bool   // ExprConstBool

	Elts []*Expr // ExprList, ExprTuple
	Keys []*Expr // ExprDict
	Vals []*Expr // ExprDict

	Op          string // ExprBinOp, ExprUnary
	Left, Right *Expr  // ExprBinOp
	Operand     *Expr  // ExprUnary
}

// Keyword is a single `name=value` (or `**value` when Name == "") argument
// in a call expression.
type Keyword struct {
	Name  string
	Value *Expr
}

// DottedName returns the full "a.b.c" spelling of a Name/Attribute chain,
// and whether the expression was entirely composed of names.
func (e *Expr) DottedName() (string, bool) {
	if e == nil {
		return "", false
	}
	switch e.Kind {
	case ExprName:
		return e.Name, true
	case ExprAttribute:
		base, ok := e.Value.DottedName()
		if !ok {
			return "", false
		}
		return base + "." + e.Attr, true
	default:
		return "", false
	}
}

// StmtKind tags the restricted statement grammar.
type StmtKind int

const (
	StmtAssign StmtKind = iota
	StmtExpr
	StmtCompound // if/for/while/with/try/def/class: anything that introduces nested suites
	StmtOther    // import, return, pass, etc. -- structurally inert
)

// Stmt is a statement in a Block. Suites holds every nested body this
// statement introduces (an `if` contributes its body, each `elif`/`else`
// branch, a `try` contributes its body plus each handler and its
// `finally`, and so on); the parser does not distinguish branch kind
// because the backtracking walk in ResolveName treats every enclosing
// suite identically.
type Stmt struct {
	Kind StmtKind
	Line int

	// StmtAssign: simple "NAME = expr" and chained "NAME = NAME = expr"
	// targets; tuple/attribute/subscript targets are recorded as StmtOther
	// since they can't be backtracked to by a bare-name reference.
	Targets []string
	Value   *Expr

	// StmtExpr
	Expr *Expr

	Suites []*Block
}

// Block is a sequence of statements sharing a lexical scope (the module
// body, or the body of an if/for/while/with/try/def/class statement),
// linked to its lexically enclosing Block so a bare-name reference can be
// resolved by walking outward.
type Block struct {
	Parent *Block
	Stmts  []*Stmt
}

// CallSite pairs a discovered Call expression with the block/line it
// appears in, letting ResolveName backtrack from the call's position.
type CallSite struct {
	Call  *Expr
	Block *Block
	Line  int
}
