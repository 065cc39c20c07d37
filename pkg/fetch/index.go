// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/datawire/pipcache/pkg/bundle"
	"github.com/datawire/pipcache/pkg/manifest"
	"github.com/datawire/pipcache/pkg/pipfault"
	"github.com/datawire/pipcache/pkg/python/pep503"
	"github.com/datawire/pipcache/pkg/python/pep592"
	"github.com/datawire/pipcache/pkg/python/pep629"
)

// candidate is one simple-index anchor that matched req's name and
// version, carrying enough to rank and download it.
type candidate struct {
	link      pep503.FileLink
	filename  string
	extension string
	yanked    bool
}

// extensionRank implements spec.md §4.4's "(.tar.gz > .zip > other)" tie
// -break: lower sorts first (more preferred).
func extensionRank(ext string) int {
	switch ext {
	case ".tar.gz":
		return 0
	case ".zip":
		return 1
	default:
		return 2
	}
}

func fetchIndex(ctx context.Context, req *manifest.Requirement, cfg Config) (*Result, error) {
	canonicalName := pep503.Normalize(req.RawName)
	wantVersion, err := canonicalVersion(req.VersionSpecs[0].Version)
	if err != nil {
		return nil, pipfault.Fetch("requirement %q: %w", req.RawName, err)
	}

	client := pep503.Client{
		BaseURL:    cfg.IndexProxyBaseURL,
		HTTPClient: httpClientFor(cfg, hostOf(cfg.IndexProxyBaseURL)),
		HTMLHook:   pep629.HTMLVersionCheck,
	}
	links, err := client.ListPackageFiles(ctx, req.RawName)
	if err != nil {
		return nil, pipfault.Fetch("listing index files for %q: %w", req.RawName, err)
	}

	candidates := matchingCandidates(links, canonicalName, wantVersion)
	if len(candidates) == 0 {
		return nil, pipfault.Fetch("no index candidate for %s==%s", req.RawName, wantVersion)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].yanked != candidates[j].yanked {
			return !candidates[i].yanked // non-yanked first
		}
		return extensionRank(candidates[i].extension) < extensionRank(candidates[j].extension)
	})
	best := candidates[0]
	if best.yanked {
		return nil, pipfault.Fetch("every index candidate for %s==%s is yanked", req.RawName, wantVersion)
	}

	localPath, err := bundle.IndexPath(cfg.BundleRoot, best.filename)
	if err != nil {
		return nil, pipfault.Internal("%w", err)
	}

	logFetch(ctx, "fetch: downloading index artifact %s (%s==%s)", best.filename, req.RawName, wantVersion)
	if err := downloadToPath(ctx, client.HTTPClient, best.link.HRef, cfg.IndexUsername, cfg.IndexPassword, localPath); err != nil {
		return nil, err
	}

	ok, err := hasPkgInfo(localPath)
	if err != nil {
		return nil, pipfault.Fetch("inspecting %s: %w", best.filename, err)
	}
	if !ok {
		return nil, pipfault.Fetch("%s does not contain a PKG-INFO member", best.filename)
	}

	if cfg.RequireHashes || len(req.Hashes) > 0 {
		if err := verifyHashes(localPath, req.Hashes); err != nil {
			return nil, err
		}
	}

	if cfg.Mirror != nil {
		if err := cfg.Mirror.PublishPyPI(ctx, cfg.IndexRepo, localPath, canonicalName, wantVersion); err != nil {
			return nil, err
		}
	}

	return &Result{
		Kind:        manifest.KindIndex,
		PackageName: canonicalName,
		LocalPath:   localPath,
		Version:     wantVersion,
	}, nil
}

// anchorNameVariantPattern recognizes "<name-variant>-<version><sdist-ext>" where
// name-variant spells the canonical name with "-", "_", or "." runs and
// arbitrary case, per spec.md §4.4.
func anchorNameVariantPattern(canonicalName string) *regexp.Regexp {
	parts := strings.Split(canonicalName, "-")
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = regexp.QuoteMeta(p)
	}
	// Separators between name components may each be a run of "-", "_",
	// or "."; the one preceding the version is a single "-", "_", or ".".
	namePattern := strings.Join(escaped, "[-_.]+")
	return regexp.MustCompile(`(?i)^` + namePattern + `[-_.](.+)$`)
}

func matchingCandidates(links []pep503.FileLink, canonicalName, wantVersion string) []candidate {
	nameRE := anchorNameVariantPattern(canonicalName)
	var out []candidate
	for _, link := range links {
		ext, ok := bundle.SdistExtension(link.Text)
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(link.Text, ext)
		m := nameRE.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		rawVersion := m[1]
		gotVersion, err := canonicalVersion(rawVersion)
		if err != nil || gotVersion != wantVersion {
			continue
		}
		out = append(out, candidate{
			link:      link,
			filename:  link.Text,
			extension: ext,
			yanked:    pep592.IsYanked(link),
		})
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Port() != "" {
		return u.Hostname() + ":" + u.Port()
	}
	return u.Hostname()
}
