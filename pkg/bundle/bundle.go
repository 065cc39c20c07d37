// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package bundle computes the on-disk paths of the content-addressed
// bundle tree that the fetch pipeline materializes artifacts into, and
// that the caller later walks to enumerate materialized dependencies. It
// holds no state and does no I/O; every function here is pure.
package bundle

import (
	"path/filepath"
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
)

// Root is the bundle directory for a single request: <root>/temp/<R>/deps/pip.
func Root(root, requestID string) string {
	return filepath.Join(root, "temp", requestID, "deps", "pip")
}

// IndexPath computes the location of a simple-index-fetched sdist:
// <pip>/<filename-stem>/<filename>, where filename-stem is the filename
// with its extension removed (e.g. "requests-2.25.1" for
// "requests-2.25.1.tar.gz").
func IndexPath(pipRoot, filename string) (string, error) {
	if filename == "" {
		return "", pipfault.Internal("bundle.IndexPath: empty filename")
	}
	return checkContainment(pipRoot, filepath.Join(pipRoot, stem(filename), filename))
}

// VCSPath computes the location of a VCS-fetched artifact:
// <pip>/<host>/<namespace-components...>/<repo>/<raw-component-filename>.
func VCSPath(pipRoot, host string, namespace []string, repo, rawFilename string) (string, error) {
	if host == "" || repo == "" || rawFilename == "" {
		return "", pipfault.Internal("bundle.VCSPath: missing host, repo, or filename")
	}
	parts := append([]string{pipRoot, host}, namespace...)
	parts = append(parts, repo, rawFilename)
	return checkContainment(pipRoot, filepath.Join(parts...))
}

// URLPath computes the location of an arbitrary-URL-fetched artifact:
// <pip>/external-<name>/<raw-component-filename>.
func URLPath(pipRoot, name, rawFilename string) (string, error) {
	if name == "" || rawFilename == "" {
		return "", pipfault.Internal("bundle.URLPath: missing name or filename")
	}
	return checkContainment(pipRoot, filepath.Join(pipRoot, "external-"+name, rawFilename))
}

// stem strips the recognized sdist extension (or, failing that, the last
// "." extension) from filename. Multi-dot extensions like ".tar.gz" are
// removed as a unit.
func stem(filename string) string {
	for _, ext := range sdistExtensions {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext)
		}
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// sdistExtensions are the recognized sdist extensions from spec.md §4.3,
// longest first so ".tar.gz" is matched before ".gz".
//
//nolint:gochecknoglobals // Would be 'const'.
var sdistExtensions = []string{
	".tar.gz",
	".tar.bz2",
	".tar.xz",
	".tar.Z",
	".tar",
	".zip",
}

// HasSdistExtension reports whether filename ends in one of the recognized
// sdist extensions.
func HasSdistExtension(filename string) bool {
	for _, ext := range sdistExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// SdistExtension returns the recognized sdist extension that filename (or
// a URL path) ends in, and whether one was found.
func SdistExtension(filename string) (string, bool) {
	for _, ext := range sdistExtensions {
		if strings.HasSuffix(filename, ext) {
			return ext, true
		}
	}
	return "", false
}

// checkContainment enforces I6: the computed path must lie under pipRoot,
// with no component escaping it via "..".
func checkContainment(pipRoot, candidate string) (string, error) {
	rel, err := filepath.Rel(pipRoot, candidate)
	if err != nil {
		return "", pipfault.Internal("bundle: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pipfault.Internal("bundle: computed path %q escapes bundle root %q", candidate, pipRoot)
	}
	return candidate, nil
}
