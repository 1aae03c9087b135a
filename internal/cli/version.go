package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Populated at build time via -ldflags "-X ...cli.version=v1.2.0" etc.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the release-gate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "release-gate %s (commit %s, built %s)\n",
				version, commit, date)
		},
	}
}
