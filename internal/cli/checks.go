package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newChecksCmd(opts *options) *cobra.Command {
	var categories []string

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the registered checks for the target environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg, buildProbeClient(cfg), buildControlPlane(cfg))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tCRITICALITY\tTIMEOUT\tRETRIES\tDESCRIPTION")
			for _, c := range reg.Filter(cats) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					c.ID, c.Category, c.Criticality, c.Timeout, c.Retry.MaxAttempts, c.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&categories, "categories", nil,
		"list only these check categories ("+categoryNames()+")")
	return cmd
}
