// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package resolve implements C0: it wraps C1-C5 into the three
// operations spec.md §6 exposes to callers -- resolve, prepare_for_request,
// and finalize_for_request -- fanning out C4 per requirement with a
// bounded worker pool, per spec.md §5.
package resolve

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pipcache/pkg/bundle"
	"github.com/datawire/pipcache/pkg/fetch"
	"github.com/datawire/pipcache/pkg/manifest"
	"github.com/datawire/pipcache/pkg/metadata"
	"github.com/datawire/pipcache/pkg/mirror"
	"github.com/datawire/pipcache/pkg/pipfault"
)

const (
	defaultManifestName      = "requirements.txt"
	defaultBuildManifestName = "requirements-build.txt"

	// defaultConcurrency bounds the number of simultaneous C4 fetches,
	// per spec.md §5's worker-pool model.
	defaultConcurrency = 8
)

// Package is one resolved dependency, per spec.md §6's
// "{name, version, type: pip, dev: bool}" shape.
type Package struct {
	Name    string
	Version string
	Type    string
	Dev     bool
}

// Request carries everything resolve needs beyond the source tree and
// manifest list: the bundle root, the request identifier that namespaces
// it (bundle.Root's requestID), and the fetch/mirror configuration.
type Request struct {
	BundleRoot  string
	RequestID   string
	FetchConfig fetch.Config
	Concurrency int // 0 means defaultConcurrency
}

// Result is resolve's return value, per spec.md §6.
type Result struct {
	RootPackage   Package
	Dependencies  []Package
	ManifestPaths []string
}

// Resolve implements spec.md §6's resolve(source_path, request_record,
// manifests?, build_manifests?) operation. If manifests/buildManifests
// are nil, it probes for requirements.txt / requirements-build.txt at
// sourcePath, per spec.md §6.
func Resolve(ctx context.Context, sourcePath string, req Request, manifests, buildManifests []string) (*Result, error) {
	id, err := metadata.Extract(sourcePath)
	if err != nil {
		return nil, err
	}

	if manifests == nil {
		if p := probeManifest(sourcePath, defaultManifestName); p != "" {
			manifests = []string{p}
		}
	}
	if buildManifests == nil {
		if p := probeManifest(sourcePath, defaultBuildManifestName); p != "" {
			buildManifests = []string{p}
		}
	}

	cfg := req.FetchConfig
	cfg.BundleRoot = bundle.Root(req.BundleRoot, req.RequestID)

	result := &Result{
		RootPackage: Package{Name: id.Name, Version: id.Version, Type: "pip"},
	}

	for _, mp := range manifests {
		deps, err := resolveManifest(ctx, mp, cfg, req.Concurrency, false)
		if err != nil {
			return nil, err
		}
		result.Dependencies = append(result.Dependencies, deps...)
		result.ManifestPaths = append(result.ManifestPaths, mp)
	}
	for _, mp := range buildManifests {
		deps, err := resolveManifest(ctx, mp, cfg, req.Concurrency, true)
		if err != nil {
			return nil, err
		}
		result.Dependencies = append(result.Dependencies, deps...)
		result.ManifestPaths = append(result.ManifestPaths, mp)
	}

	return result, nil
}

func probeManifest(sourcePath, name string) string {
	p := filepath.Join(sourcePath, name)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// resolveManifest parses and validates one manifest, then fans its
// requirements out across a bounded errgroup, preserving the manifest's
// requirement order in the returned slice regardless of completion order
// -- spec.md §5's ordering guarantee.
func resolveManifest(ctx context.Context, path string, cfg fetch.Config, concurrency int, dev bool) ([]Package, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, pipfault.Config("reading manifest %q: %w", path, err)
	}
	doc, err := manifest.Parse(path, string(src))
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	// A manifest's own --require-hashes option (or any requirement in it
	// already carrying a hash) forces hash enforcement at fetch time
	// independent of whatever the CLI's --require-hashes flag set cfg to,
	// matching the original download_dependencies' "require_hashes =
	// options['require_hashes'] or any(req.hashes for req in requirements)".
	cfg.RequireHashes = cfg.RequireHashes || doc.EffectiveRequireHashes()

	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]Package, len(doc.Requirements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, r := range doc.Requirements {
		i, r := i, r
		g.Go(func() error {
			res, err := fetch.Fetch(gctx, r, cfg)
			if err != nil {
				return err
			}
			name := res.PackageName
			version := res.Version
			results[i] = Package{Name: name, Version: version, Type: "pip", Dev: dev}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PrepareForRequest implements spec.md §6's prepare_for_request: it runs
// the artifact store's "before content staged" named script.
func PrepareForRequest(ctx context.Context, m *mirror.Client, indexRepo, rawRepo string) error {
	dlog.Infof(ctx, "resolve: preparing repos %s / %s for staging", indexRepo, rawRepo)
	return m.ExecuteNamedScript(ctx, "before-content-staged", map[string]string{
		"index_repo_name": indexRepo,
		"raw_repo_name":   rawRepo,
	})
}

// FinalizeForRequest implements spec.md §6's finalize_for_request: it
// generates a 24-32-hex-character password and runs the store's "after
// content staged" named script, granting username that password.
func FinalizeForRequest(ctx context.Context, m *mirror.Client, indexRepo, rawRepo, username string) (string, error) {
	password, err := mirror.GeneratePassword()
	if err != nil {
		return "", err
	}
	dlog.Infof(ctx, "resolve: finalizing repos %s / %s for user %s", indexRepo, rawRepo, username)
	err = m.ExecuteNamedScript(ctx, "after-content-staged", map[string]string{
		"index_repo_name": indexRepo,
		"raw_repo_name":   rawRepo,
		"username":        username,
		"password":        password,
	})
	if err != nil {
		return "", err
	}
	return password, nil
}
