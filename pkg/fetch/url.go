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
	"github.com/datawire/pipcache/pkg/python/pep503"
)

// hashForURL returns the requirement's sole integrity hash, whether
// supplied via --hash or the cachito_hash URL fragment, split into its
// algorithm and hex digest, and reports whether the hash was already
// present in the URL's cachito_hash fragment (as opposed to a --hash
// option, which addCachitoHash must still fold into the fragment). I2
// guarantees exactly one is present by the time C4 runs.
func hashForURL(req *manifest.Requirement) (alg, digest string, fromQualifier bool, err error) {
	var spec string
	switch {
	case len(req.Hashes) == 1:
		spec = req.Hashes[0]
	case req.Qualifiers["cachito_hash"] != "":
		spec = req.Qualifiers["cachito_hash"]
		fromQualifier = true
	default:
		return "", "", false, pipfault.Internal("url requirement %q reached C4 without exactly one hash", req.RawName)
	}
	idx := strings.Index(spec, ":")
	if idx < 0 {
		return "", "", false, pipfault.Validation("malformed hash %q", spec)
	}
	return spec[:idx], spec[idx+1:], fromQualifier, nil
}

// addCachitoHash folds "cachito_hash=<alg>:<digest>" into rawURL's
// fragment, matching the original's _add_cachito_hash_to_url: a --hash
// option's value is carried forward onto the echoed url_with_hash even
// though it never appeared in the URL itself. The pair is joined in
// plain "key=value" form, not query-escaped, so the ":" in "<alg>:<digest>"
// reads the same as spec.md §8 scenario 3's literal
// "cachito_hash=sha256:deadbeef…" example.
func addCachitoHash(rawURL, alg, digest string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	pair := "cachito_hash=" + alg + ":" + digest
	if u.Fragment == "" {
		u.Fragment = pair
	} else {
		u.Fragment += "&" + pair
	}
	u.RawFragment = ""
	return u.String()
}

func fetchURL(ctx context.Context, req *manifest.Requirement, cfg Config) (*Result, error) {
	alg, digest, fromQualifier, err := hashForURL(req)
	if err != nil {
		return nil, err
	}
	urlWithHash := req.URL
	if !fromQualifier {
		urlWithHash = addCachitoHash(req.URL, alg, digest)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, pipfault.Validation("url requirement %q: %w", req.RawName, err)
	}
	ext, ok := bundle.SdistExtension(u.Path)
	if !ok {
		return nil, pipfault.Validation("url requirement %q: %q is not a recognized sdist archive", req.RawName, req.URL)
	}

	name := req.NormalizedName
	if name == "" {
		name = pep503.Normalize(req.RawName)
	}
	rawFilename := name + "-external-" + alg + "-" + digest + ext
	rawArtifactName := name + "/" + rawFilename
	localPath, err := bundle.URLPath(cfg.BundleRoot, name, rawFilename)
	if err != nil {
		return nil, pipfault.Internal("%w", err)
	}

	alreadyMirrored := false
	if cfg.Mirror != nil {
		if assetURL, ok, mErr := cfg.Mirror.RawAssetURL(ctx, cfg.RawRepo, rawArtifactName); mErr == nil && ok {
			logFetch(ctx, "fetch: %s already mirrored, downloading from raw repo", rawArtifactName)
			if err := downloadToPath(ctx, httpClientFor(cfg, hostOf(req.URL)), assetURL, "", "", localPath); err != nil {
				return nil, err
			}
			alreadyMirrored = true
		}
	}

	if !alreadyMirrored {
		logFetch(ctx, "fetch: downloading %s", req.URL)
		client := httpClientFor(cfg, hostOf(req.URL))
		if err := downloadToPath(ctx, client, req.URL, "", "", localPath); err != nil {
			return nil, err
		}
	}

	// url requirements are always integrity-checked, regardless of
	// --require-hashes: spec.md §9's open question resolves that a
	// cachito_hash-only url requirement is still checked.
	if err := verifyHashes(localPath, []string{alg + ":" + digest}); err != nil {
		return nil, err
	}

	if !alreadyMirrored && cfg.Mirror != nil {
		if err := cfg.Mirror.PublishRaw(ctx, cfg.RawRepo, name, rawFilename, localPath, name); err != nil {
			return nil, err
		}
	}

	return &Result{
		Kind:            manifest.KindURL,
		PackageName:     name,
		LocalPath:       localPath,
		Version:         urlWithHash,
		OriginalURL:     req.URL,
		URLWithHash:     urlWithHash,
		RawArtifactName: rawArtifactName,
		AlreadyMirrored: alreadyMirrored,
	}, nil
}
