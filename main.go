// Command pipcache resolves and materializes the sdists a Python
// project needs to build, from a pinned-requirements manifest, into a
// content-addressed bundle tree mirrored into a hosted artifact
// repository.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datawire/pipcache/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "pipcache {[flags]|SUBCOMMAND...}",
	Short: "Prefetch Python sdist dependency closures into a bundle tree",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

func main() {
	ctx := context.Background()

	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
