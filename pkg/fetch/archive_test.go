// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, names []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func writeTarGz(t *testing.T, path string, names []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: 1, Mode: 0o644}))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestHasPkgInfoZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.zip")
	writeZip(t, path, []string{"pkg-1.0/PKG-INFO", "pkg-1.0/setup.py"})

	ok, err := hasPkgInfo(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPkgInfoZipMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.zip")
	writeZip(t, path, []string{"pkg-1.0/setup.py"})

	ok, err := hasPkgInfo(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPkgInfoTarGz(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.tar.gz")
	writeTarGz(t, path, []string{"pkg-1.0/PKG-INFO"})

	ok, err := hasPkgInfo(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPkgInfoNestedPathDoesNotCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.tar.gz")
	writeTarGz(t, path, []string{"pkg-1.0/src/PKG-INFO"})

	ok, err := hasPkgInfo(path)
	require.NoError(t, err)
	assert.False(t, ok)
}
