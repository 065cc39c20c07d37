// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses a pinned-requirements file into global options
// and per-requirement records (C2), and validates the result against the
// pinning/hash/scheme/reference-format rules (C3), per spec.md §3, §4.2,
// and §4.3.
package manifest

import (
	"github.com/datawire/pipcache/pkg/python/pep345"
	"github.com/datawire/pipcache/pkg/python/pep503"
)

// Kind tags a requirement's fetch origin. Modeled as a closed tagged
// variant -- per DESIGN NOTES, every consumer switches on Kind rather than
// using an interface hierarchy.
type Kind int

const (
	KindIndex Kind = iota
	KindVCS
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindVCS:
		return "vcs"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Option is a single parsed manifest token beginning with "-", resolved
// against the fixed option schema of spec.md §6.
type Option struct {
	Name     string // canonical long form, e.g. "--trusted-host"
	Value    string
	HasValue bool
}

// Requirement is one parsed, immutable record from a manifest file. See
// spec.md §3.
type Requirement struct {
	RawName        string
	NormalizedName string
	Kind           Kind

	// VersionSpecs is populated only for Kind == KindIndex; I1 requires
	// exactly one clause whose operator is "==" or "===".
	VersionSpecs pep345.VersionSpecifier

	Extras             []string
	EnvironmentMarker  string // "" means absent
	Hashes             []string
	Qualifiers         map[string]string
	DownloadLine       string
	Options            []Option
	URL                string // derived for vcs/url: the third whitespace token of DownloadLine
	SourceFile         string
	SourceLine         int
}

// normalize fills NormalizedName from RawName using the canonical-name
// rule (lowercase, collapse "-"/"_"/"." runs).
func (r *Requirement) normalize() {
	r.NormalizedName = pep503.Normalize(r.RawName)
}

// Document is a parsed manifest: an ordered sequence of global option
// tokens plus an ordered sequence of requirement records. Per DESIGN
// NOTES, the "parsed?" memoization some prior implementations keep as
// hidden mutable state is made explicit here as a sync.Once-guarded
// Validate, so concurrent fetch workers can share one *Document safely.
type Document struct {
	GlobalOptions []Option
	Requirements  []*Requirement

	validation validationState
}
