// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestPublishPyPIUploadsOnFirstCall verifies the non-conflict path: a bare
// upload succeeds and no search request is ever made.
func TestPublishPyPIUploadsOnFirstCall(t *testing.T) {
	var uploads, searches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/repository/pypi-hosted/":
			uploads++
			body, _ := io.ReadAll(r.Body)
			assert.NotEmpty(t, body)
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/v1/search":
			searches++
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"items":[]}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	path := writeArtifact(t, "sdist contents")

	require.NoError(t, c.PublishPyPI(context.Background(), "pypi-hosted", path, "widget", "1.0"))
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 0, searches)
}

// TestPublishPyPIConflictTreatsExistingComponentAsSuccess implements
// spec.md §4.5's idempotency rule: an upload conflict (409) is not an
// error so long as the store reports a same-identity component already
// exists.
func TestPublishPyPIConflictTreatsExistingComponentAsSuccess(t *testing.T) {
	var uploads, searches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/repository/pypi-hosted/":
			uploads++
			w.WriteHeader(http.StatusConflict)
		case r.URL.Path == "/v1/search":
			searches++
			assert.Equal(t, "widget", r.URL.Query().Get("name"))
			assert.Equal(t, "1.0", r.URL.Query().Get("version"))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"items":[{"id":"existing"}]}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	path := writeArtifact(t, "sdist contents")

	require.NoError(t, c.PublishPyPI(context.Background(), "pypi-hosted", path, "widget", "1.0"))
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, searches)
}

// TestPublishPyPIConflictWithNoExistingComponentFails verifies that a
// conflict with no matching search result surfaces a MirrorError rather
// than silently succeeding.
func TestPublishPyPIConflictWithNoExistingComponentFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
		case r.URL.Path == "/v1/search":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"items":[]}`))
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	path := writeArtifact(t, "sdist contents")

	err := c.PublishPyPI(context.Background(), "pypi-hosted", path, "widget", "1.0")
	assert.Error(t, err)
}

// TestPublishRawIdempotentRoundTrip covers T7's mirror half: RawAssetURL
// reports a vcs/url artifact absent before its first PublishRaw and
// present, at its raw-repo URL, after it -- the presence check a caller
// consults before fetching and publishing again.
func TestPublishRawIdempotentRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/repository/raw-hosted/"
		switch {
		case r.Method == http.MethodPost && r.URL.Path == prefix:
			body, _ := io.ReadAll(r.Body)
			stored["foo/foo-external-gitcommit-deadbeef.tar.gz"] = body
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == prefix+"foo/foo-external-gitcommit-deadbeef.tar.gz":
			if _, ok := stored["foo/foo-external-gitcommit-deadbeef.tar.gz"]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: http.DefaultClient}
	rawName := "foo/foo-external-gitcommit-deadbeef.tar.gz"

	_, ok, err := c.RawAssetURL(context.Background(), "raw-hosted", rawName)
	require.NoError(t, err)
	assert.False(t, ok, "mirror must report the artifact absent before first publish")

	path := writeArtifact(t, "tree contents")
	require.NoError(t, c.PublishRaw(context.Background(), "raw-hosted", "foo", "foo-external-gitcommit-deadbeef.tar.gz", path, "foo"))

	assetURL, ok, err := c.RawAssetURL(context.Background(), "raw-hosted", rawName)
	require.NoError(t, err)
	require.True(t, ok, "mirror must report the artifact present after publish")
	assert.Equal(t, srv.URL+"/repository/raw-hosted/"+rawName, assetURL)
}

func TestGeneratePasswordLength(t *testing.T) {
	for i := 0; i < 20; i++ {
		password, err := GeneratePassword()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(password), 24)
		assert.LessOrEqual(t, len(password), 32)
	}
}
