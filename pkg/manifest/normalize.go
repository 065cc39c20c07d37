// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
	"github.com/datawire/pipcache/pkg/python/pep345"
)

//nolint:gochecknoglobals // compiled once, used read-only.
var vcsSchemeRE = regexp.MustCompile(`^(bzr|git|hg|svn)(\+[a-z0-9.+-]+)?$`)

// buildRequirement implements spec.md §4.2's requirement normalizer: it
// takes the accumulated requirement text and per-requirement options for
// one logical line and produces a fully populated *Requirement.
func buildRequirement(pl parsedLine, sourceFile string) (*Requirement, error) {
	text := strings.TrimSpace(strings.Join(pl.TextTokens, " "))

	req, err := parseRequirementText(text)
	if err != nil {
		return nil, err
	}
	req.SourceFile = sourceFile
	req.SourceLine = pl.Line
	req.Options = append(req.Options, pl.ReqOptions...)

	for _, opt := range pl.ReqOptions {
		if opt.Name == "--hash" {
			req.Hashes = append(req.Hashes, opt.Value)
		}
	}

	req.normalize()
	return req, nil
}

// parseRequirementText detects the direct-reference shape (by the
// presence of ":") and otherwise parses an index requirement, per
// spec.md §4.2.
func parseRequirementText(text string) (*Requirement, error) {
	if strings.Contains(text, ":") {
		return parseDirectReference(text)
	}
	return parseIndexRequirement(text)
}

// parseDirectReference handles "<name> @ <url>[;<marker>]" and bare
// "<url>" requirement text.
func parseDirectReference(text string) (*Requirement, error) {
	colonIdx := strings.Index(text, ":")
	prefix := text[:colonIdx]

	var namePart, rest string
	if atIdx := strings.LastIndex(prefix, "@"); atIdx >= 0 {
		namePart = strings.TrimSpace(prefix[:atIdx])
		rest = strings.TrimSpace(text[atIdx+1:])
	} else {
		rest = strings.TrimSpace(text)
	}

	scheme := strings.ToLower(strings.TrimSpace(prefixScheme(prefix, namePart != "")))

	var kind Kind
	switch {
	case scheme == "http" || scheme == "https" || scheme == "ftp":
		kind = KindURL
	case vcsSchemeRE.MatchString(scheme):
		kind = KindVCS
	default:
		return nil, pipfault.Config("unsupported direct reference scheme: %q", scheme)
	}

	urlPart, marker := splitMarker(rest)

	qualifiers := map[string]string{}
	if u, err := url.Parse(urlPart); err == nil && u.Fragment != "" {
		if vals, err := url.ParseQuery(u.Fragment); err == nil {
			for k, v := range vals {
				if len(v) > 0 {
					qualifiers[k] = v[0]
				}
			}
		}
	}

	name := namePart
	var extras []string
	if name != "" {
		name, extras = splitExtras(name)
	}
	if name == "" {
		if egg, ok := qualifiers["egg"]; ok {
			name = egg
		}
	}

	downloadLine := urlPart
	if name != "" {
		downloadLine = name + " @ " + urlPart
	}
	if marker != "" {
		downloadLine += " ; " + marker
	}

	return &Requirement{
		RawName:           name,
		Kind:              kind,
		Extras:            extras,
		EnvironmentMarker: marker,
		Qualifiers:        qualifiers,
		DownloadLine:      downloadLine,
		URL:               urlPart,
	}, nil
}

// prefixScheme returns the scheme portion of a direct reference's prefix:
// everything up to the first ":", minus an optional "<name> @ " lead-in.
func prefixScheme(prefix string, hasName bool) string {
	if !hasName {
		return prefix
	}
	atIdx := strings.LastIndex(prefix, "@")
	return prefix[atIdx+1:]
}

// splitMarker splits "<url> ; <marker>" on a top-level ";" (the PEP 508
// marker separator).
func splitMarker(text string) (url, marker string) {
	if idx := strings.Index(text, ";"); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:])
	}
	return strings.TrimSpace(text), ""
}

// splitExtras splits "name[extra1,extra2]" into ("name", [extra1, extra2]).
func splitExtras(name string) (string, []string) {
	start := strings.Index(name, "[")
	if start < 0 || !strings.HasSuffix(name, "]") {
		return name, nil
	}
	base := name[:start]
	inner := name[start+1 : len(name)-1]
	var extras []string
	for _, e := range strings.Split(inner, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			extras = append(extras, e)
		}
	}
	return strings.TrimSpace(base), extras
}

// nameRE matches the leading PEP 508 project-name token of a requirement
// string: letters, digits, and the canonical-name separators.
//
//nolint:gochecknoglobals // compiled once, used read-only.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// parseIndexRequirement parses "name[extras]<version-spec>[;marker]" --
// the non-direct-reference shape, per a standard PEP 508 requirement
// grammar restricted to pinned (no range) version specifiers.
func parseIndexRequirement(text string) (*Requirement, error) {
	body, marker := splitMarker(text)
	body = strings.TrimSpace(body)

	nameMatch := nameRE.FindString(body)
	if nameMatch == "" {
		return nil, pipfault.Validation("could not parse requirement name from %q", text)
	}
	rest := strings.TrimSpace(body[len(nameMatch):])

	name, extras := nameMatch, []string(nil)
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, pipfault.Validation("unterminated extras list in %q", text)
		}
		_, extras = splitExtras(nameMatch + rest[:end+1])
		rest = strings.TrimSpace(rest[end+1:])
	}

	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSpace(rest)

	var specs pep345.VersionSpecifier
	if rest != "" {
		parsed, err := pep345.ParseVersionSpecifier(rest)
		if err != nil {
			return nil, pipfault.Validation("requirement %q: %w", text, err)
		}
		specs = parsed
	}

	return &Requirement{
		RawName:           name,
		Kind:              KindIndex,
		Extras:            extras,
		VersionSpecs:      specs,
		EnvironmentMarker: marker,
		Qualifiers:        map[string]string{},
		DownloadLine:      strings.TrimSpace(text),
	}, nil
}
