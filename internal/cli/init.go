package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NomadCrew/release-gate/config"
)

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file for an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := opts.environment
			if env == "" {
				env = string(config.Development)
			}
			path, err := config.CreateConfigTemplateForEnvironment(config.EnvType(env))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Wrote %s. Fill in the target URLs and credentials before running verify.\n", path)
			return nil
		},
	}
}
