// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pipcache/pkg/manifest"
)

const urlTestBody = "sdist contents"

// sha256("sdist contents")
const urlTestDigest = "5cdd61ffd12be9395f9e7e7e58a2e222360c31636ded493c45266e02677610f1"

func TestAddCachitoHashAppendsFragment(t *testing.T) {
	got := addCachitoHash("https://example.invalid/spam-1.0.tar.gz", "sha256", "deadbeef")
	assert.Equal(t, "https://example.invalid/spam-1.0.tar.gz#cachito_hash=sha256:deadbeef", got)
}

func TestAddCachitoHashPreservesExistingFragment(t *testing.T) {
	got := addCachitoHash("https://example.invalid/spam-1.0.tar.gz#egg=spam", "sha256", "deadbeef")
	assert.Contains(t, got, "egg=spam")
	assert.Contains(t, got, "cachito_hash=sha256:deadbeef")
}

// TestFetchURLEchoesHashOnURLWithHash verifies that a --hash-supplied
// requirement (one whose URL fragment never carried cachito_hash) gets it
// folded into Result.URLWithHash, matching the original
// _add_cachito_hash_to_url/_push_downloaded_requirement behavior.
func TestFetchURLEchoesHashOnURLWithHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(urlTestBody))
	}))
	defer srv.Close()

	req := &manifest.Requirement{
		RawName:        "spam",
		NormalizedName: "spam",
		Kind:           manifest.KindURL,
		URL:            srv.URL + "/spam-1.0.tar.gz",
		Hashes:         []string{"sha256:" + urlTestDigest},
	}
	cfg := Config{BundleRoot: t.TempDir()}

	res, err := fetchURL(context.Background(), req, cfg)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/spam-1.0.tar.gz#cachito_hash=sha256:"+urlTestDigest, res.URLWithHash)
	assert.Equal(t, res.URLWithHash, res.Version)
	assert.Equal(t, srv.URL+"/spam-1.0.tar.gz", res.OriginalURL)
}

// TestFetchURLPreservesURLWithHashFromQualifier verifies that a
// cachito_hash-qualified requirement's URLWithHash is left exactly as
// supplied, since the hash is already embedded in the URL fragment.
func TestFetchURLPreservesURLWithHashFromQualifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(urlTestBody))
	}))
	defer srv.Close()

	rawURL := srv.URL + "/spam-1.0.tar.gz#egg=spam&cachito_hash=sha256:" + urlTestDigest
	req := &manifest.Requirement{
		RawName:        "spam",
		NormalizedName: "spam",
		Kind:           manifest.KindURL,
		URL:            rawURL,
		Qualifiers:     map[string]string{"egg": "spam", "cachito_hash": "sha256:" + urlTestDigest},
	}
	cfg := Config{BundleRoot: t.TempDir()}

	res, err := fetchURL(context.Background(), req, cfg)
	require.NoError(t, err)
	assert.Equal(t, rawURL, res.URLWithHash)
	assert.Equal(t, rawURL, res.Version)
}
