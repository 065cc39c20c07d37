package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/datawire/pipcache/pkg/cliutil"
	"github.com/datawire/pipcache/pkg/mirror"
	"github.com/datawire/pipcache/pkg/resolve"
)

func newMirrorClient(baseURL, username, password string) *mirror.Client {
	return &mirror.Client{
		BaseURL:    baseURL,
		Username:   username,
		Password:   password,
		HTTPClient: http.DefaultClient,
	}
}

func init() {
	var flags struct {
		MirrorBaseURL  string
		MirrorUsername string
		MirrorPassword string
		IndexRepo      string
		RawRepo        string
	}
	cmd := &cobra.Command{
		Use:   "prepare [flags] --index-repo=NAME --raw-repo=NAME",
		Short: "Run the artifact store's before-content-staged hook",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := newMirrorClient(flags.MirrorBaseURL, flags.MirrorUsername, flags.MirrorPassword)
			return resolve.PrepareForRequest(ctx, m, flags.IndexRepo, flags.RawRepo)
		},
	}
	cmd.Flags().StringVar(&flags.MirrorBaseURL, "mirror-base-url", "", "Artifact-store base URL")
	cmd.Flags().StringVar(&flags.MirrorUsername, "mirror-username", "", "Artifact-store username")
	cmd.Flags().StringVar(&flags.MirrorPassword, "mirror-password", "", "Artifact-store password")
	cmd.Flags().StringVar(&flags.IndexRepo, "index-repo", "", "Hosted PyPI-format repository name")
	cmd.Flags().StringVar(&flags.RawRepo, "raw-repo", "", "Hosted raw-format repository name")

	argparser.AddCommand(cmd)
}

func init() {
	var flags struct {
		MirrorBaseURL  string
		MirrorUsername string
		MirrorPassword string
		IndexRepo      string
		RawRepo        string
		Username       string
	}
	cmd := &cobra.Command{
		Use:   "finalize [flags] --index-repo=NAME --raw-repo=NAME --username=NAME",
		Short: "Run the artifact store's after-content-staged hook and print the generated password",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := newMirrorClient(flags.MirrorBaseURL, flags.MirrorUsername, flags.MirrorPassword)
			password, err := resolve.FinalizeForRequest(ctx, m, flags.IndexRepo, flags.RawRepo, flags.Username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), password)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.MirrorBaseURL, "mirror-base-url", "", "Artifact-store base URL")
	cmd.Flags().StringVar(&flags.MirrorUsername, "mirror-username", "", "Artifact-store username")
	cmd.Flags().StringVar(&flags.MirrorPassword, "mirror-password", "", "Artifact-store password")
	cmd.Flags().StringVar(&flags.IndexRepo, "index-repo", "", "Hosted PyPI-format repository name")
	cmd.Flags().StringVar(&flags.RawRepo, "raw-repo", "", "Hosted raw-format repository name")
	cmd.Flags().StringVar(&flags.Username, "username", "", "Username to grant the generated password to")

	argparser.AddCommand(cmd)
}
