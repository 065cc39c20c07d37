// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package gitfetch implements the default "fetch ref of URL into a local
// archive" git collaborator that spec.md §6 names as external to the
// core: given a clone URL and a 40-hex commit ref, produce a local
// tar.gz archive of that ref's tree. pkg/fetch depends only on the
// Fetcher interface below; this package is one concrete implementation
// of it, grounded on the retrieval pack's use of go-git for ref
// resolution (see DESIGN.md).
package gitfetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/datawire/dlib/dlog"
)

// Fetcher is the external git-fetch primitive spec.md §6 describes:
// fetch(url, ref) -> local archive path containing a tar.gz of the ref's
// tree.
type Fetcher interface {
	Fetch(ctx context.Context, url, ref string) (archivePath string, err error)
}

// GoGitFetcher is the default Fetcher. It clones url into an in-memory
// object store (no working tree is checked out to disk), resolves ref as
// a commit, and walks its tree directly into a tar.gz under TempDir.
type GoGitFetcher struct {
	// TempDir is the directory new archives are created under; "" means
	// os.TempDir().
	TempDir string
}

// Fetch implements Fetcher.
func (f GoGitFetcher) Fetch(ctx context.Context, url, ref string) (_ string, err error) {
	dlog.Infof(ctx, "gitfetch: cloning %s to resolve %s", url, ref)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          url,
		Tags:         git.NoTags,
		SingleBranch: false,
	})
	if err != nil {
		return "", fmt.Errorf("gitfetch: clone %q: %w", url, err)
	}

	commit, err := repo.CommitObject(plumbing.NewHash(ref))
	if err != nil {
		return "", fmt.Errorf("gitfetch: resolve commit %s in %q: %w", ref, url, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("gitfetch: read tree of %s in %q: %w", ref, url, err)
	}

	out, err := os.CreateTemp(f.TempDir, "gitfetch-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("gitfetch: %w", err)
	}
	path := out.Name()
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(path)
		}
	}()

	if err = writeTarGz(out, tree); err != nil {
		return "", fmt.Errorf("gitfetch: archiving %s in %q: %w", ref, url, err)
	}
	if err = out.Close(); err != nil {
		return "", fmt.Errorf("gitfetch: %w", err)
	}
	return path, nil
}

func writeTarGz(out *os.File, tree *object.Tree) error {
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err := tree.Files().ForEach(func(file *object.File) error {
		content, err := file.Contents()
		if err != nil {
			return fmt.Errorf("reading %s: %w", file.Name, err)
		}
		mode := int64(0o644)
		if file.Mode == filemode.Executable {
			mode = 0o755
		}
		hdr := &tar.Header{
			Name: file.Name,
			Mode: mode,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = tw.Write([]byte(content))
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
