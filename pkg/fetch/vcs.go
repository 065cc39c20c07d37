// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/datawire/pipcache/pkg/bundle"
	"github.com/datawire/pipcache/pkg/manifest"
	"github.com/datawire/pipcache/pkg/pipfault"
)

// parsedVCSURL is the (clean_url, ref, host, namespace, repo) tuple
// spec.md §4.4 derives from a vcs requirement's URL.
type parsedVCSURL struct {
	CleanURL  string
	Ref       string
	Host      string
	Namespace []string
	Repo      string
}

// parseVCSURL implements spec.md §4.4's vcs parsing: strip a leading
// "git+", take the URL's trailing 40 characters as the ref, and the
// remaining path (sans any userinfo) as the clean clone URL.
func parseVCSURL(raw string) (parsedVCSURL, error) {
	trimmed := strings.TrimPrefix(raw, "git+")
	u, err := url.Parse(trimmed)
	if err != nil {
		return parsedVCSURL{}, pipfault.Validation("vcs url %q: %w", raw, err)
	}

	path := u.Path
	if len(path) < 41 || path[len(path)-41] != '@' {
		return parsedVCSURL{}, pipfault.Validation("vcs url %q: path %q has no 40-character ref", raw, path)
	}
	ref := strings.ToLower(path[len(path)-40:])
	cleanPath := path[:len(path)-41]

	host := u.Hostname()
	if u.Port() != "" {
		host += ":" + u.Port()
	}

	clean := *u
	clean.User = nil
	clean.Path = cleanPath
	clean.RawQuery = ""
	clean.Fragment = ""

	nsRepo := strings.Trim(cleanPath, "/")
	nsRepo = strings.TrimSuffix(nsRepo, ".git")
	var namespace []string
	repo := nsRepo
	if idx := strings.LastIndex(nsRepo, "/"); idx >= 0 {
		repo = nsRepo[idx+1:]
		namespace = strings.Split(nsRepo[:idx], "/")
	}

	return parsedVCSURL{
		CleanURL:  clean.String(),
		Ref:       ref,
		Host:      host,
		Namespace: namespace,
		Repo:      repo,
	}, nil
}

func fetchVCS(ctx context.Context, req *manifest.Requirement, cfg Config) (*Result, error) {
	parsed, err := parseVCSURL(req.URL)
	if err != nil {
		return nil, err
	}

	rawFilename := parsed.Repo + "-external-gitcommit-" + parsed.Ref + ".tar.gz"
	rawArtifactName := parsed.Repo + "/" + rawFilename
	localPath, err := bundle.VCSPath(cfg.BundleRoot, parsed.Host, parsed.Namespace, parsed.Repo, rawFilename)
	if err != nil {
		return nil, pipfault.Internal("%w", err)
	}

	alreadyMirrored := false
	if cfg.Mirror != nil {
		if assetURL, ok, mErr := cfg.Mirror.RawAssetURL(ctx, cfg.RawRepo, rawArtifactName); mErr == nil && ok {
			logFetch(ctx, "fetch: %s already mirrored, downloading from raw repo", rawArtifactName)
			if err := downloadToPath(ctx, httpClientFor(cfg, parsed.Host), assetURL, "", "", localPath); err != nil {
				return nil, err
			}
			alreadyMirrored = true
		}
	}

	if !alreadyMirrored {
		fetcher := cfg.GitFetcher
		if fetcher == nil {
			return nil, pipfault.Internal("fetch: no git-fetch collaborator configured")
		}
		logFetch(ctx, "fetch: cloning %s @ %s", parsed.CleanURL, parsed.Ref)
		archivePath, err := fetcher.Fetch(ctx, parsed.CleanURL, parsed.Ref)
		if err != nil {
			return nil, pipfault.Fetch("git fetch of %s @ %s: %w", parsed.CleanURL, parsed.Ref, err)
		}
		if err := copyToPath(archivePath, localPath); err != nil {
			return nil, err
		}
	}

	if cfg.RequireHashes || len(req.Hashes) > 0 {
		if err := verifyHashes(localPath, req.Hashes); err != nil {
			return nil, err
		}
	}

	if !alreadyMirrored && cfg.Mirror != nil {
		if err := cfg.Mirror.PublishRaw(ctx, cfg.RawRepo, parsed.Repo, rawFilename, localPath, parsed.Repo); err != nil {
			return nil, err
		}
	}

	return &Result{
		Kind:            manifest.KindVCS,
		PackageName:     req.NormalizedName,
		LocalPath:       localPath,
		Version:         "git+" + parsed.CleanURL + "@" + parsed.Ref,
		URL:             parsed.CleanURL,
		Ref:             parsed.Ref,
		Host:            parsed.Host,
		Namespace:       parsed.Namespace,
		Repo:            parsed.Repo,
		RawArtifactName: rawArtifactName,
		AlreadyMirrored: alreadyMirrored,
	}, nil
}
