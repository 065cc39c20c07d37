// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/datawire/pipcache/pkg/bundle"
	"github.com/datawire/pipcache/pkg/pipfault"
	"github.com/datawire/pipcache/pkg/python/pep345"
)

// validationState memoizes Document.Validate's outcome behind a sync.Once,
// so repeated calls (e.g. from concurrent fetch workers sharing one
// *Document) do not re-run validation and always observe the same result.
type validationState struct {
	once sync.Once
	err  error
}

//nolint:gochecknoglobals // compiled once, used read-only.
var hashFormatRE = regexp.MustCompile(`^[A-Za-z0-9_-]+:[0-9a-fA-F]+$`)

//nolint:gochecknoglobals // compiled once, used read-only.
var vcsRefRE = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// rejectedGlobalOptions is spec.md §4.3's reject list: global options that
// make validation fail outright, because honoring them would require
// functionality (index selection, binary wheels) this system does not
// implement.
//
//nolint:gochecknoglobals // schema table, not mutated.
var rejectedGlobalOptions = map[string]bool{
	"--index-url":       true,
	"--extra-index-url": true,
	"--no-index":        true,
	"--find-links":      true,
	"--only-binary":     true,
}

// Validate runs spec.md §4.3's requirement validator exactly once per
// Document and caches the result.
func (d *Document) Validate() error {
	d.validation.once.Do(func() {
		d.validation.err = d.validate()
	})
	return d.validation.err
}

// EffectiveRequireHashes reports whether hash verification must be
// enforced for every non-url requirement in d: either its --require-hashes
// global option is set, or any requirement in it already carries a hash,
// per spec.md I4 and the original download_dependencies' "require_hashes =
// options['require_hashes'] or any(req.hashes for req in requirements)".
// Callers (pkg/resolve) merge this into fetch.Config.RequireHashes so it
// also governs fetch-time verification, not just this validation pass.
func (d *Document) EffectiveRequireHashes() bool {
	for _, opt := range d.GlobalOptions {
		if opt.Name == "--require-hashes" {
			return true
		}
	}
	return anyRequirementHashed(d.Requirements)
}

func (d *Document) validate() error {
	for _, opt := range d.GlobalOptions {
		if rejectedGlobalOptions[opt.Name] {
			return pipfault.Config("global option %q is not supported", opt.Name)
		}
	}

	for _, req := range d.Requirements {
		if err := validateRequirement(req); err != nil {
			return err
		}
	}

	if d.EffectiveRequireHashes() {
		for _, req := range d.Requirements {
			if req.Kind == KindURL {
				continue
			}
			if len(req.Hashes) == 0 {
				return pipfault.Validation(
					"requirement %q requires a hash (require-hashes is in effect)", req.RawName)
			}
		}
	}

	return nil
}

func anyRequirementHashed(reqs []*Requirement) bool {
	for _, req := range reqs {
		if len(req.Hashes) > 0 {
			return true
		}
	}
	return false
}

func validateRequirement(req *Requirement) error {
	for _, h := range req.Hashes {
		if !hashFormatRE.MatchString(h) {
			return pipfault.Validation("requirement %q: malformed hash %q", req.RawName, h)
		}
	}

	switch req.Kind {
	case KindIndex:
		return validateIndexRequirement(req)
	case KindURL:
		return validateURLRequirement(req)
	case KindVCS:
		return validateVCSRequirement(req)
	default:
		return pipfault.Internal("requirement %q: unknown kind %v", req.RawName, req.Kind)
	}
}

// validateIndexRequirement enforces I1.
func validateIndexRequirement(req *Requirement) error {
	if len(req.VersionSpecs) != 1 {
		return pipfault.Validation(
			"index requirement %q must have exactly one version spec, found %d",
			req.RawName, len(req.VersionSpecs))
	}
	op := req.VersionSpecs[0].CmpOp
	if op != pep345.CmpOpEQ && op != pep345.CmpOpArbitrary {
		return pipfault.Validation(
			"index requirement %q's version spec must use == or ===, found %q",
			req.RawName, op)
	}
	return nil
}

// validateURLRequirement enforces I2 and the sdist-extension/hash rules.
func validateURLRequirement(req *Requirement) error {
	_, cachitoHash := req.Qualifiers["cachito_hash"]
	switch {
	case len(req.Hashes) == 0 && !cachitoHash:
		return pipfault.Validation("url requirement %q: no hash supplied", req.RawName)
	case len(req.Hashes) > 1:
		return pipfault.Validation("url requirement %q: more than one hash supplied", req.RawName)
	case len(req.Hashes) == 1 && cachitoHash:
		return pipfault.Validation(
			"url requirement %q: hash supplied both via --hash and cachito_hash", req.RawName)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return pipfault.Validation("url requirement %q: invalid URL %q: %w", req.RawName, req.URL, err)
	}
	if !bundle.HasSdistExtension(u.Path) {
		return pipfault.Validation("url requirement %q: %q is not a recognized sdist archive", req.RawName, u.Path)
	}
	return nil
}

// validateVCSRequirement enforces I3.
func validateVCSRequirement(req *Requirement) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return pipfault.Validation("vcs requirement %q: invalid URL %q: %w", req.RawName, req.URL, err)
	}
	if !strings.HasPrefix(strings.ToLower(u.Scheme), "git") {
		return pipfault.Validation("vcs requirement %q: scheme %q does not begin with \"git\"", req.RawName, u.Scheme)
	}

	idx := strings.LastIndex(u.Path, "@")
	if idx < 0 {
		return pipfault.Validation("vcs requirement %q: path %q has no ref", req.RawName, u.Path)
	}
	ref := u.Path[idx+1:]
	if !vcsRefRE.MatchString(ref) {
		return pipfault.Validation(
			"vcs requirement %q: ref %q is not exactly 40 hex characters", req.RawName, ref)
	}
	return nil
}
