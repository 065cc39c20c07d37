// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHashesMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o666))

	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	assert.NoError(t, verifyHashes(path, []string{"sha256:" + want}))
	assert.NoError(t, verifyHashes(path, []string{"md5:deadbeef", "sha256:" + want}))
}

func TestVerifyHashesMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o666))

	err := verifyHashes(path, []string{"sha256:deadbeef"})
	assert.Error(t, err)
}

func TestVerifyHashesEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o666))
	assert.NoError(t, verifyHashes(path, nil))
}
