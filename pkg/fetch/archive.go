// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/datawire/pipcache/pkg/bundle"
)

// hasPkgInfo implements spec.md §4.4's post-download sdist check: the
// archive must contain a member whose path has exactly two components
// ending in "PKG-INFO". ".tar.Z" archives are not inspectable without
// external tooling and are always accepted.
func hasPkgInfo(path string) (bool, error) {
	ext, _ := bundle.SdistExtension(path)
	switch ext {
	case ".tar.Z":
		return true, nil
	case ".zip":
		return hasPkgInfoZip(path)
	default:
		return hasPkgInfoTar(path, ext)
	}
}

func isPkgInfoMember(name string) bool {
	clean := strings.Trim(filepath.ToSlash(name), "/")
	parts := strings.Split(clean, "/")
	return len(parts) == 2 && parts[1] == "PKG-INFO"
}

func hasPkgInfoZip(path string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, err
	}
	defer r.Close()
	for _, f := range r.File {
		if isPkgInfoMember(f.Name) {
			return true, nil
		}
	}
	return false, nil
}

func hasPkgInfoTar(path, ext string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var r io.Reader = f
	switch ext {
	case ".tar.gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return false, err
		}
		defer gz.Close()
		r = gz
	case ".tar.bz2":
		r = bzip2.NewReader(f)
	case ".tar.xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			return false, err
		}
		r = xr
	case ".tar":
		// already a plain tar stream
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if isPkgInfoMember(hdr.Name) {
			return true, nil
		}
	}
}
