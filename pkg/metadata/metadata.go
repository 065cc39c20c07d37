// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package metadata extracts a Python project's declared identity --
// `name` and `version` -- from its source tree, consulting a build
// script's `setup(...)` call and a declarative `setup.cfg` in that order,
// per spec.md §4.1. Neither source is executed: the build script is
// parsed into a restricted AST (pkg/pyast) and evaluated as a literal
// expression only, falling back to a bounded backtracking scan for a
// preceding variable assignment.
package metadata

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
	"github.com/datawire/pipcache/pkg/pyast"
	"github.com/datawire/pipcache/pkg/python"
)

// Identity is the project's extracted (name, version) pair.
type Identity struct {
	Name    string
	Version string
}

const (
	buildScriptFilename      = "setup.py"
	declarativeConfigFilename = "setup.cfg"
)

// Extract reads the project's identity from projectDir, consulting
// setup.py and then setup.cfg, filling in only fields still missing after
// the build script. It fails with a MetadataError if name or version
// remains unresolved after both sources are consulted.
func Extract(projectDir string) (Identity, error) {
	var id Identity

	scriptPath := filepath.Join(projectDir, buildScriptFilename)
	if data, err := os.ReadFile(scriptPath); err == nil {
		name, version, err := extractFromBuildScript(string(data))
		if err != nil {
			return Identity{}, err
		}
		id.Name, id.Version = name, version
	} else if !os.IsNotExist(err) {
		return Identity{}, pipfault.Metadata("reading %s: %w", scriptPath, err)
	}

	cfgPath := filepath.Join(projectDir, declarativeConfigFilename)
	if data, err := os.ReadFile(cfgPath); err == nil {
		if err := fillFromDeclarativeConfig(projectDir, string(data), &id); err != nil {
			return Identity{}, err
		}
	} else if !os.IsNotExist(err) {
		return Identity{}, pipfault.Metadata("reading %s: %w", cfgPath, err)
	}

	if id.Name == "" || id.Version == "" {
		return Identity{}, pipfault.Metadata(
			"could not resolve project identity from %s and %s (name=%q version=%q)",
			buildScriptFilename, declarativeConfigFilename, id.Name, id.Version)
	}
	return id, nil
}

// extractFromBuildScript implements spec.md §4.1 step 1: find the first
// setup()/<pkg>.setup() call by depth-first left-to-right traversal, and
// resolve its "name"/"version" keyword arguments as literals, backtracking
// through a single level of bare-variable indirection.
func extractFromBuildScript(src string) (name, version string, err error) {
	mod, err := pyast.Parse(src)
	if err != nil {
		return "", "", pipfault.Metadata("parsing %s: %w", buildScriptFilename, err)
	}
	site, ok := pyast.FindSetupCall(mod)
	if !ok {
		return "", "", nil
	}
	name, _ = resolveArg(site, "name")
	rawVersion, _ := resolveArg(site, "version")
	return name, sanitizeVersionValue(rawVersion), nil
}

// resolveArg resolves keyword argument argName of a setup() call site: if
// it is a literal expression, evaluate it; if it is a bare variable
// reference, backtrack to a preceding top-level assignment; any other
// shape yields "unresolved" (ok=false).
func resolveArg(site *pyast.CallSite, argName string) (string, bool) {
	expr, present := pyast.ResolveKeywordArg(site.Call, argName)
	if !present {
		return "", false
	}
	if val, ok := pyast.EvalLiteral(expr); ok {
		return val.Joined(), true
	}
	if expr.Kind != pyast.ExprName {
		return "", false
	}
	resolved, ok := pyast.ResolveName(site.Block, expr.Name, site.Line)
	if !ok {
		return "", false
	}
	val, ok := pyast.EvalLiteral(resolved)
	if !ok {
		return "", false
	}
	return val.Joined(), true
}

// fillFromDeclarativeConfig implements spec.md §4.1 step 2: read
// metadata.name/metadata.version from setup.cfg, filling only fields
// still empty in id. The version value supports "file:<relpath>" and
// "attr:<dotted.path>" directives.
func fillFromDeclarativeConfig(projectDir, src string, id *Identity) error {
	cfg, err := python.NewConfigParser().Parse(strings.NewReader(src))
	if err != nil {
		return pipfault.Metadata("parsing %s: %w", declarativeConfigFilename, err)
	}
	section, ok := cfg["metadata"]
	if !ok {
		return nil
	}
	if id.Name == "" {
		id.Name = section["name"]
	}
	if id.Version == "" {
		raw, ok := section["version"]
		if ok {
			version, err := resolveDeclaredVersion(projectDir, cfg, raw)
			if err != nil {
				return err
			}
			id.Version = version
		}
	}
	return nil
}

func resolveDeclaredVersion(projectDir string, cfg python.Config, raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "file:"):
		relpath := strings.TrimSpace(strings.TrimPrefix(raw, "file:"))
		path, err := containedPath(projectDir, relpath)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", pipfault.Metadata("reading version file %s: %w", relpath, err)
		}
		return sanitizeVersionValue(strings.TrimSpace(string(data))), nil

	case strings.HasPrefix(raw, "attr:"):
		dotted := strings.TrimSpace(strings.TrimPrefix(raw, "attr:"))
		value, err := resolveAttrVersion(projectDir, cfg, dotted)
		if err != nil {
			return "", err
		}
		return sanitizeVersionValue(value), nil

	default:
		return sanitizeVersionValue(raw), nil
	}
}

// resolveAttrVersion resolves an "attr:mod.submod.NAME" directive: split
// off the trailing NAME, locate the corresponding module file (honoring
// an "options.package_dir" mapping if present), parse it, and extract the
// literal value of a top-level assignment to NAME.
func resolveAttrVersion(projectDir string, cfg python.Config, dotted string) (string, error) {
	parts := strings.Split(dotted, ".")
	if len(parts) < 2 {
		return "", pipfault.Config("attr: directive %q is missing a module path", dotted)
	}
	modParts, leaf := parts[:len(parts)-1], parts[len(parts)-1]

	packageDir := parsePackageDir(cfg)
	path, err := resolveModuleFile(projectDir, packageDir, modParts)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", pipfault.Config("attr: module %s: %w", strings.Join(modParts, "."), err)
	}
	mod, err := pyast.Parse(string(data))
	if err != nil {
		return "", pipfault.Metadata("parsing %s: %w", path, err)
	}
	value, ok := topLevelLiteral(mod, leaf)
	if !ok {
		return "", pipfault.Metadata("attr: %s: %s has no literal top-level assignment", dotted, leaf)
	}
	return value, nil
}

// topLevelLiteral scans mod's own statement list (not nested blocks) for
// an assignment targeting name, returning the last (most recently bound)
// literal value found.
func topLevelLiteral(mod *pyast.Block, name string) (string, bool) {
	found := ""
	ok := false
	for _, stmt := range mod.Stmts {
		if stmt.Kind != pyast.StmtAssign {
			continue
		}
		for _, t := range stmt.Targets {
			if t != name {
				continue
			}
			if val, litOK := pyast.EvalLiteral(stmt.Value); litOK {
				found = val.Joined()
				ok = true
			}
		}
	}
	return found, ok
}

// parsePackageDir parses the [options] section's "package_dir" value,
// setuptools' own format: one "<pkgname>=<dir>" pair per (continuation)
// line, where an empty pkgname maps the project root.
func parsePackageDir(cfg python.Config) map[string]string {
	out := map[string]string{}
	options, ok := cfg["options"]
	if !ok {
		return out
	}
	raw, ok := options["package_dir"]
	if !ok {
		return out
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	return out
}

// resolveModuleFile turns a dotted module path into a project-relative
// file, substituting the root package's directory from packageDir if
// mapped, and accepting either "<path>.py" (a plain module) or
// "<path>/__init__.py" (a package), whichever exists.
func resolveModuleFile(projectDir string, packageDir map[string]string, modParts []string) (string, error) {
	parts := append([]string{}, modParts...)
	if len(parts) > 0 {
		root := parts[0]
		if dir, ok := packageDir[root]; ok {
			parts[0] = dir
		} else if dir, ok := packageDir[""]; ok {
			parts = append([]string{dir}, parts...)
		}
	}
	base := filepath.Join(parts...)
	for _, candidate := range []string{base + ".py", filepath.Join(base, "__init__.py")} {
		path, err := containedPath(projectDir, candidate)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", pipfault.Config("attr: could not locate module file for %q", strings.Join(modParts, "."))
}

// containedPath joins projectDir and relPath, rejecting any result that
// escapes projectDir (spec.md §4.1: "reject any resolved file path that
// escapes the project directory").
func containedPath(projectDir, relPath string) (string, error) {
	full := filepath.Join(projectDir, relPath)
	rel, err := filepath.Rel(projectDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pipfault.Config("path %q escapes project directory", relPath)
	}
	return full, nil
}

//nolint:gochecknoglobals // compiled once, used read-only.
var separatorRunRE = regexp.MustCompile(`([-_.])[-_.]*`)

// sanitizeVersionValue implements the "standard version-sanitization
// rule" of spec.md §4.1: lowercase, strip a leading "v", and collapse
// repeated separator characters.
func sanitizeVersionValue(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(s, "v") && len(s) > 1 {
		if c := s[1]; c >= '0' && c <= '9' {
			s = s[1:]
		}
	}
	return separatorRunRE.ReplaceAllString(s, "$1")
}
