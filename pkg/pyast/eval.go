// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyast

import "strings"

// ValueKind tags the restricted literal value domain this package can
// evaluate: strings, numbers, booleans, None, and lists/tuples of those.
type ValueKind int

const (
	ValString ValueKind = iota
	ValNumber
	ValBool
	ValNone
	ValList
)

// Value is the result of evaluating an Expr as a literal.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []Value
}

// Joined renders Value the way spec-level version normalization expects:
// a string passes through unchanged; a list/tuple is rendered
// element-wise and joined with "."; anything else is stringified.
func (v Value) Joined() string {
	switch v.Kind {
	case ValString:
		return v.Str
	case ValList:
		parts := make([]string, 0, len(v.List))
		for _, e := range v.List {
			parts = append(parts, e.Joined())
		}
		return joinDot(parts)
	case ValNumber:
		return formatNumber(v.Num)
	case ValBool:
		if v.Bool {
			return "True"
		}
		return "False"
	default:
		return "None"
	}
}

func joinDot(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return itoa(int64(n))
	}
	return ftoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [24]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ftoa(f float64) string {
	// Sufficient for version-like numbers (e.g. "1.0"); avoids importing
	// strconv purely for this cosmetic path.
	whole := int64(f)
	frac := f - float64(whole)
	if frac < 0 {
		frac = -frac
	}
	fracStr := ""
	for i := 0; i < 6 && frac > 0; i++ {
		frac *= 10
		d := int64(frac)
		fracStr += itoa(d)
		frac -= float64(d)
	}
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	if fracStr == "" {
		return itoa(whole)
	}
	return itoa(whole) + "." + fracStr
}

// EvalLiteral evaluates e as a literal expression -- strings, numbers,
// True/False/None, lists/tuples of those, and "+"-concatenation or
// unary "-" over them. Anything else (names, calls, comparisons,
// comprehensions, f-strings, ...) reports ok=false.
func EvalLiteral(e *Expr) (_ Value, ok bool) {
	if e == nil {
		return Value{}, false
	}
	switch e.Kind {
	case ExprConstStr:
		return Value{Kind: ValString, Str: e.Str}, true
	case ExprConstNum:
		return Value{Kind: ValNumber, Num: e.Num}, true
	case ExprConstBool:
		return Value{Kind: ValBool, Bool: e.Bool}, true
	case ExprConstNone:
		return Value{Kind: ValNone}, true
	case ExprList, ExprTuple:
		vals := make([]Value, 0, len(e.Elts))
		for _, elt := range e.Elts {
			v, ok := EvalLiteral(elt)
			if !ok {
				return Value{}, false
			}
			vals = append(vals, v)
		}
		return Value{Kind: ValList, List: vals}, true
	case ExprUnary:
		if e.Op != "-" {
			return Value{}, false
		}
		v, ok := EvalLiteral(e.Operand)
		if !ok || v.Kind != ValNumber {
			return Value{}, false
		}
		return Value{Kind: ValNumber, Num: -v.Num}, true
	case ExprBinOp:
		if e.Op != "+" {
			return Value{}, false
		}
		l, lok := EvalLiteral(e.Left)
		r, rok := EvalLiteral(e.Right)
		if !lok || !rok {
			return Value{}, false
		}
		switch {
		case l.Kind == ValString && r.Kind == ValString:
			return Value{Kind: ValString, Str: l.Str + r.Str}, true
		case l.Kind == ValNumber && r.Kind == ValNumber:
			return Value{Kind: ValNumber, Num: l.Num + r.Num}, true
		case l.Kind == ValList && r.Kind == ValList:
			combined := make([]Value, 0, len(l.List)+len(r.List))
			combined = append(combined, l.List...)
			combined = append(combined, r.List...)
			return Value{Kind: ValList, List: combined}, true
		default:
			return Value{}, false
		}
	default:
		return Value{}, false
	}
}

// FindSetupCall performs a depth-first, left-to-right search of mod for
// the first call to "setup(...)" or "<anything>.setup(...)", returning
// the call site along with the lexical block it appears in (for
// ResolveName to backtrack from).
func FindSetupCall(mod *Block) (*CallSite, bool) {
	return findInBlock(mod)
}

func findInBlock(block *Block) (*CallSite, bool) {
	for _, stmt := range block.Stmts {
		switch stmt.Kind {
		case StmtExpr:
			if cs, ok := findInExpr(stmt.Expr, block, stmt.Line); ok {
				return cs, true
			}
		case StmtAssign:
			if cs, ok := findInExpr(stmt.Value, block, stmt.Line); ok {
				return cs, true
			}
		case StmtCompound:
			for _, suite := range stmt.Suites {
				if cs, ok := findInBlock(suite); ok {
					return cs, true
				}
			}
		}
	}
	return nil, false
}

func findInExpr(e *Expr, block *Block, line int) (*CallSite, bool) {
	if e == nil {
		return nil, false
	}
	if e.Kind == ExprCall && isSetupCall(e) {
		return &CallSite{Call: e, Block: block, Line: line}, true
	}
	for _, c := range exprChildren(e) {
		if cs, ok := findInExpr(c, block, line); ok {
			return cs, true
		}
	}
	return nil, false
}

func isSetupCall(e *Expr) bool {
	dotted, ok := e.Func.DottedName()
	if !ok {
		return false
	}
	return dotted == "setup" || strings.HasSuffix(dotted, ".setup")
}

func exprChildren(e *Expr) []*Expr {
	switch e.Kind {
	case ExprAttribute:
		return []*Expr{e.Value}
	case ExprCall:
		children := make([]*Expr, 0, 1+len(e.Args)+len(e.Keywords))
		children = append(children, e.Func)
		children = append(children, e.Args...)
		for _, kw := range e.Keywords {
			children = append(children, kw.Value)
		}
		return children
	case ExprBinOp:
		return []*Expr{e.Left, e.Right}
	case ExprUnary:
		return []*Expr{e.Operand}
	case ExprList, ExprTuple:
		return e.Elts
	case ExprDict:
		children := make([]*Expr, 0, len(e.Keys)+len(e.Vals))
		children = append(children, e.Keys...)
		children = append(children, e.Vals...)
		return children
	default:
		return nil
	}
}

// ResolveName backtracks from a call's enclosing block outward, per
// DESIGN NOTES: at each block in the chain, its statements are scanned in
// reverse for a top-level assignment targeting name whose line is
// strictly before beforeLine. The first hit (innermost block first, then
// outward) wins.
func ResolveName(startBlock *Block, name string, beforeLine int) (*Expr, bool) {
	for block := startBlock; block != nil; block = block.Parent {
		for i := len(block.Stmts) - 1; i >= 0; i-- {
			stmt := block.Stmts[i]
			if stmt.Kind != StmtAssign || stmt.Line >= beforeLine {
				continue
			}
			for _, t := range stmt.Targets {
				if t == name {
					return stmt.Value, true
				}
			}
		}
	}
	return nil, false
}

// ResolveKeywordArg returns the expression bound to keyword argName in
// call, and whether it was present. If argName appears more than once
// (invalid Python, but tolerated here), the last occurrence wins, matching
// CPython's own keyword-argument evaluation order.
func ResolveKeywordArg(call *Expr, argName string) (*Expr, bool) {
	var found *Expr
	ok := false
	for _, kw := range call.Keywords {
		if kw.Name == argName {
			found = kw.Value
			ok = true
		}
	}
	return found, ok
}
