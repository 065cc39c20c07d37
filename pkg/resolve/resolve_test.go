// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pipcache/pkg/fetch"
	"github.com/datawire/pipcache/pkg/mirror"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// TestResolveOrdersDependenciesByManifest verifies spec.md §5's ordering
// guarantee: even though requests complete out of order (the server
// deliberately stalls the first requirement longer than the second),
// the returned dependency list preserves manifest order.
func TestResolveOrdersDependenciesByManifest(t *testing.T) {
	ctx := dlog.NewTestContext(t, true)

	const slowBody = "pkg-a contents"
	const fastBody = "pkg-b contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pkg-a-1.0.tar.gz" {
			time.Sleep(30 * time.Millisecond)
			_, _ = w.Write([]byte(slowBody))
			return
		}
		_, _ = w.Write([]byte(fastBody))
	}))
	defer srv.Close()

	manifestSrc := fmt.Sprintf(
		"pkg-a @ %s/pkg-a-1.0.tar.gz --hash=sha256:bfbd81ab4aa8ce74836f21702b481b68dc3b4ec5a7986de2fa9b964d55d49661\n"+
			"pkg-b @ %s/pkg-b-1.0.tar.gz --hash=sha256:25dc2e3436006d9c1de331f64c67bf152ca249f808c2928500ddd84cf244edc0\n",
		srv.URL, srv.URL)

	projectDir := writeProject(t, map[string]string{
		"setup.py":         "setup(name=\"widget\", version=\"1.0\")\n",
		"requirements.txt": manifestSrc,
	})

	bundleRoot := t.TempDir()
	req := Request{
		BundleRoot: bundleRoot,
		RequestID:  "test-request",
	}

	result, err := Resolve(ctx, projectDir, req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Package{Name: "widget", Version: "1.0", Type: "pip"}, result.RootPackage)
	require.Len(t, result.Dependencies, 2)
	assert.Equal(t, "pkg-a", result.Dependencies[0].Name)
	assert.Equal(t, "pkg-b", result.Dependencies[1].Name)
	assert.False(t, result.Dependencies[0].Dev)
	require.Len(t, result.ManifestPaths, 1)
}

func TestResolveManifestPropagatesFetchError(t *testing.T) {
	ctx := dlog.NewTestContext(t, true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	manifestPath := filepath.Join(t.TempDir(), "requirements.txt")
	src := fmt.Sprintf("pkg-a @ %s/pkg-a-1.0.tar.gz --hash=sha256:bfbd81ab4aa8ce74836f21702b481b68dc3b4ec5a7986de2fa9b964d55d49661\n", srv.URL)
	require.NoError(t, os.WriteFile(manifestPath, []byte(src), 0o644))

	_, err := resolveManifest(ctx, manifestPath, fetch.Config{BundleRoot: t.TempDir()}, 0, false)
	assert.Error(t, err)
}

func TestProbeManifestMissing(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", probeManifest(dir, "requirements.txt"))
}

func TestProbeManifestFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	assert.Equal(t, path, probeManifest(dir, "requirements.txt"))
}

func TestPrepareAndFinalizeForRequest(t *testing.T) {
	ctx := context.Background()
	var gotUsername string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/script/after-content-staged/run" {
			gotUsername = "seen"
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := &mirror.Client{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	require.NoError(t, PrepareForRequest(ctx, m, "pypi-hosted", "raw-hosted"))

	password, err := FinalizeForRequest(ctx, m, "pypi-hosted", "raw-hosted", "build-user")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(password), 24)
	assert.LessOrEqual(t, len(password), 32)
	assert.Equal(t, "seen", gotUsername)
}
