// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep345 implements the version-specifier clause grammar from
// PEP 345 -- Metadata for Python Software Packages 1.2, extended with the
// "===" (arbitrary equality) clause from PEP 440 that PEP 345 itself never
// defined. It is used to represent (not evaluate) the ordered
// operator/version pairs carried by a manifest requirement's version specs.
//
// https://www.python.org/dev/peps/pep-0345/
package pep345

import (
	"fmt"
	"strings"

	"github.com/datawire/pipcache/pkg/python/pep440"
)

// VersionSpecifier is an ordered sequence of comma-separated clauses, e.g.
// the ">=1.0,!=1.5,<2.0" in "foo>=1.0,!=1.5,<2.0".
type VersionSpecifier []VersionSpecifierClause

// ParseVersionSpecifier splits str on "," and parses each clause.
func ParseVersionSpecifier(str string) (VersionSpecifier, error) {
	clauseStrs := strings.FieldsFunc(str, func(r rune) bool { return r == ',' })
	ret := make(VersionSpecifier, 0, len(clauseStrs))
	for _, clauseStr := range clauseStrs {
		clause, err := parseVersionSpecifierClause(clauseStr)
		if err != nil {
			return nil, fmt.Errorf("pep345.ParseVersionSpecifier: %w", err)
		}
		ret = append(ret, clause)
	}
	return ret, nil
}

func (spec VersionSpecifier) String() string {
	strs := make([]string, 0, len(spec))
	for _, clause := range spec {
		strs = append(strs, clause.String())
	}
	return strings.Join(strs, ",")
}

// CmpOp is the comparison operator of a single version-specifier clause.
type CmpOp int

const (
	CmpOpLT CmpOp = iota
	CmpOpGT
	CmpOpLE
	CmpOpGE
	CmpOpEQ
	CmpOpNE
	// CmpOpArbitrary is PEP 440's "===" clause: a raw string comparison with
	// no normalization, kept distinct from CmpOpEQ because pipcache's own
	// manifest grammar (unlike PEP 440 proper) must accept it.
	CmpOpArbitrary
)

func (op CmpOp) String() string {
	str, ok := map[CmpOp]string{
		CmpOpLT:        "<",
		CmpOpGT:        ">",
		CmpOpLE:        "<=",
		CmpOpGE:        ">=",
		CmpOpEQ:        "==",
		CmpOpNE:        "!=",
		CmpOpArbitrary: "===",
	}[op]
	if !ok {
		panic(fmt.Errorf("invalid CmpOp: %d", op))
	}
	return str
}

// VersionSpecifierClause is a single "<op><version>" pair, such as "==1.2.3".
type VersionSpecifierClause struct {
	CmpOp CmpOp
	// Version is the literal version text following the operator. For
	// CmpOpArbitrary this is compared verbatim; for every other operator it
	// must be parseable as a PEP 440 version.
	Version string
}

func (c VersionSpecifierClause) String() string {
	return c.CmpOp.String() + c.Version
}

// ParsedVersion parses Version as a PEP 440 version. It is an error to call
// this for a CmpOpArbitrary clause.
func (c VersionSpecifierClause) ParsedVersion() (*pep440.Version, error) {
	if c.CmpOp == CmpOpArbitrary {
		return nil, fmt.Errorf("pep345: %q is an arbitrary-equality clause, not a PEP 440 version", c.Version)
	}
	return pep440.ParseVersion(c.Version)
}

func parseVersionSpecifierClause(str string) (VersionSpecifierClause, error) {
	var ret VersionSpecifierClause
	str = strings.TrimSpace(str)
	switch {
	case strings.HasPrefix(str, "<") && !strings.HasPrefix(str, "<="):
		ret.CmpOp = CmpOpLT
		str = str[1:]
	case strings.HasPrefix(str, ">") && !strings.HasPrefix(str, ">="):
		ret.CmpOp = CmpOpGT
		str = str[1:]
	case strings.HasPrefix(str, "<="):
		ret.CmpOp = CmpOpLE
		str = str[2:]
	case strings.HasPrefix(str, ">="):
		ret.CmpOp = CmpOpGE
		str = str[2:]
	case strings.HasPrefix(str, "==="):
		ret.CmpOp = CmpOpArbitrary
		str = str[3:]
	case strings.HasPrefix(str, "=="):
		ret.CmpOp = CmpOpEQ
		str = str[2:]
	case strings.HasPrefix(str, "!="):
		ret.CmpOp = CmpOpNE
		str = str[2:]
	default:
		ret.CmpOp = CmpOpEQ
	}
	ret.Version = strings.TrimSpace(str)
	if ret.CmpOp != CmpOpArbitrary {
		if _, err := pep440.ParseVersion(ret.Version); err != nil {
			return ret, err
		}
	}
	return ret, nil
}
