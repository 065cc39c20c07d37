// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
	"github.com/datawire/pipcache/pkg/python"
)

// verifyHashes implements spec.md §4.4's integrity check: localPath
// passes if it matches ANY of the offered "<algorithm>:<hex-digest>"
// entries (pip's own semantics; a requirement may list several
// algorithms for the same artifact). An empty hashes list is vacuously
// satisfied; callers that must require at least one check that
// themselves.
func verifyHashes(localPath string, hashes []string) error {
	for _, spec := range hashes {
		alg, digest, ok := strings.Cut(spec, ":")
		if !ok {
			return pipfault.Validation("malformed hash %q", spec)
		}
		newHash, known := python.HashlibAlgorithmsGuaranteed[alg]
		if !known {
			continue
		}
		got, err := digestFile(localPath, newHash)
		if err != nil {
			return pipfault.Fetch("hashing %s: %w", localPath, err)
		}
		if strings.EqualFold(got, digest) {
			return nil
		}
	}
	if len(hashes) == 0 {
		return nil
	}
	return pipfault.Fetch("%s matches none of the %d offered hash(es)", localPath, len(hashes))
}

func digestFile(path string, newHash func() hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
