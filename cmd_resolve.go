// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/pipcache/pkg/cliutil"
	"github.com/datawire/pipcache/pkg/fetch"
	"github.com/datawire/pipcache/pkg/gitfetch"
	"github.com/datawire/pipcache/pkg/mirror"
	"github.com/datawire/pipcache/pkg/resolve"
)

func init() {
	var flags struct {
		SourcePath        string
		RequestID         string
		BundleRoot        string
		Manifests         []string
		BuildManifests    []string
		IndexProxyBaseURL string
		IndexUsername     string
		IndexPassword     string
		TrustedHosts      []string
		RequireHashes     bool
		MirrorBaseURL     string
		MirrorUsername    string
		MirrorPassword    string
		IndexRepo         string
		RawRepo           string
		Concurrency       int
	}
	cmd := &cobra.Command{
		Use:   "resolve [flags] SOURCE_PATH >result.yml",
		Short: "Resolve and materialize a project's pinned sdist dependencies",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		Long: "Resolve a project's declared identity and its pinned-requirements " +
			"manifests into a set of materialized sdist dependencies, writing " +
			"them into a content-addressed bundle tree and a mirrored artifact " +
			"repository.",

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags.SourcePath = args[0]

			var m *mirror.Client
			if flags.MirrorBaseURL != "" {
				m = &mirror.Client{
					BaseURL:    flags.MirrorBaseURL,
					Username:   flags.MirrorUsername,
					Password:   flags.MirrorPassword,
					HTTPClient: http.DefaultClient,
				}
			}

			req := resolve.Request{
				BundleRoot: flags.BundleRoot,
				RequestID:  flags.RequestID,
				FetchConfig: fetch.Config{
					IndexProxyBaseURL: flags.IndexProxyBaseURL,
					IndexUsername:     flags.IndexUsername,
					IndexPassword:     flags.IndexPassword,
					TrustedHosts:      flags.TrustedHosts,
					RequireHashes:     flags.RequireHashes,
					Mirror:            m,
					IndexRepo:         flags.IndexRepo,
					RawRepo:           flags.RawRepo,
					GitFetcher:        gitfetch.GoGitFetcher{},
				},
				Concurrency: flags.Concurrency,
			}

			var manifests, buildManifests []string
			if len(flags.Manifests) > 0 {
				manifests = flags.Manifests
			}
			if len(flags.BuildManifests) > 0 {
				buildManifests = flags.BuildManifests
			}

			result, err := resolve.Resolve(ctx, flags.SourcePath, req, manifests, buildManifests)
			if err != nil {
				return err
			}

			bs, err := yaml.Marshal(result)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(bs)
			return err
		},
	}
	cmd.Flags().StringVar(&flags.RequestID, "request-id", "", "Request identifier namespacing the bundle tree")
	cmd.Flags().StringVar(&flags.BundleRoot, "bundle-root", ".", "Root directory the bundle tree is materialized under")
	cmd.Flags().StringSliceVar(&flags.Manifests, "manifest", nil,
		"Pinned-requirements manifest path (repeatable); defaults to requirements.txt at the source root")
	cmd.Flags().StringSliceVar(&flags.BuildManifests, "build-manifest", nil,
		"Build-time pinned-requirements manifest path (repeatable); defaults to requirements-build.txt")
	cmd.Flags().StringVar(&flags.IndexProxyBaseURL, "index-proxy-base-url", "", "Simple-index proxy base URL")
	cmd.Flags().StringVar(&flags.IndexUsername, "index-username", "", "Simple-index proxy username")
	cmd.Flags().StringVar(&flags.IndexPassword, "index-password", "", "Simple-index proxy password")
	cmd.Flags().StringSliceVar(&flags.TrustedHosts, "trusted-host", nil, "Host(s) to skip TLS verification for (repeatable)")
	cmd.Flags().BoolVar(&flags.RequireHashes, "require-hashes", false, "Require every non-url requirement to carry a hash")
	cmd.Flags().StringVar(&flags.MirrorBaseURL, "mirror-base-url", "", "Artifact-store base URL")
	cmd.Flags().StringVar(&flags.MirrorUsername, "mirror-username", "", "Artifact-store username")
	cmd.Flags().StringVar(&flags.MirrorPassword, "mirror-password", "", "Artifact-store password")
	cmd.Flags().StringVar(&flags.IndexRepo, "index-repo", "", "Hosted PyPI-format repository name")
	cmd.Flags().StringVar(&flags.RawRepo, "raw-repo", "", "Hosted raw-format repository name")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 0, "Maximum concurrent fetches (0 = default)")

	argparser.AddCommand(cmd)
}
