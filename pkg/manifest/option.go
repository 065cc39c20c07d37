// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
)

// optionScope distinguishes an option targeting the current requirement
// (per spec.md §4.2: "-e", "--editable", "--hash") from one that applies
// to the whole document.
type optionScope int

const (
	scopeGlobal optionScope = iota
	scopeRequirement
)

// optionSpec describes one recognized manifest option: its canonical long
// name, whether it consumes a following token as a value, and its scope.
// The table is exactly spec.md §6's "recognized options and their
// value-arity"; any "-"-prefixed token outside this table is a fatal
// parse error (ValidationError), per spec.md §4.2.
type optionSpec struct {
	Canonical  string
	TakesValue bool
	Scope      optionScope
}

//nolint:gochecknoglobals // schema table, not mutated.
var optionTable = map[string]optionSpec{
	"--require-hashes":    {"--require-hashes", false, scopeGlobal},
	"--trusted-host":      {"--trusted-host", true, scopeGlobal},
	"-c":                  {"--constraint", true, scopeGlobal},
	"--constraint":        {"--constraint", true, scopeGlobal},
	"-r":                  {"--requirement", true, scopeGlobal},
	"--requirement":       {"--requirement", true, scopeGlobal},
	"--use-feature":       {"--use-feature", true, scopeGlobal},
	"--pre":               {"--pre", false, scopeGlobal},
	"--prefer-binary":     {"--prefer-binary", false, scopeGlobal},
	"--no-binary":         {"--no-binary", true, scopeGlobal},
	"-i":                  {"--index-url", true, scopeGlobal},
	"--index-url":         {"--index-url", true, scopeGlobal},
	"--extra-index-url":   {"--extra-index-url", true, scopeGlobal},
	"--no-index":          {"--no-index", false, scopeGlobal},
	"-f":                  {"--find-links", true, scopeGlobal},
	"--find-links":        {"--find-links", true, scopeGlobal},
	"--only-binary":       {"--only-binary", true, scopeGlobal},
	"-e":                  {"--editable", false, scopeRequirement},
	"--editable":          {"--editable", false, scopeRequirement},
	"--hash":              {"--hash", true, scopeRequirement},
}

// parsedLine is the classification of one logicalLine's tokens into
// global options, per-requirement options, and requirement-text
// fragments, per spec.md §4.2's state machine.
type parsedLine struct {
	GlobalOptions []Option
	ReqOptions    []Option
	TextTokens    []string
	Line          int
}

// classifyLine runs spec.md §4.2's left-to-right token state machine over
// one logical line.
func classifyLine(ll logicalLine) (parsedLine, error) {
	result := parsedLine{Line: ll.Line}
	tokens := strings.Fields(ll.Text)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "-") {
			result.TextTokens = append(result.TextTokens, tok)
			continue
		}

		name, inlineValue, hasInline := splitOptionToken(tok)
		spec, ok := optionTable[name]
		if !ok {
			return parsedLine{}, pipfault.Validation("%s: line %d: unrecognized option %q", "manifest", ll.Line, tok)
		}

		opt := Option{Name: spec.Canonical}
		switch {
		case !spec.TakesValue:
			if hasInline {
				return parsedLine{}, pipfault.Validation(
					"manifest: line %d: option %q does not take a value", ll.Line, tok)
			}
		case hasInline:
			opt.HasValue = true
			opt.Value = inlineValue
		default:
			if i+1 >= len(tokens) {
				return parsedLine{}, pipfault.Validation(
					"manifest: line %d: option %q requires a value", ll.Line, tok)
			}
			i++
			opt.HasValue = true
			opt.Value = tokens[i]
		}

		if spec.Scope == scopeRequirement {
			result.ReqOptions = append(result.ReqOptions, opt)
		} else {
			result.GlobalOptions = append(result.GlobalOptions, opt)
		}
	}

	if len(result.TextTokens) == 0 && len(result.ReqOptions) > 0 {
		return parsedLine{}, pipfault.Validation(
			"manifest: line %d: per-requirement option with no requirement text", ll.Line)
	}

	return result, nil
}

// splitOptionToken splits "--opt=value" into ("--opt", "value", true), or
// returns the token unchanged with hasInline=false.
func splitOptionToken(tok string) (name, value string, hasInline bool) {
	if idx := strings.Index(tok, "="); idx >= 0 {
		return tok[:idx], tok[idx+1:], true
	}
	return tok, "", false
}
