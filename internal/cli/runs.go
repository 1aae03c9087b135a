package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRunsCmd(opts *options) *cobra.Command {
	var (
		limit     int
		rollbacks bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent verification runs from the history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(),
					"No history database configured; past runs are not recorded. Set DB_HOST to enable history.")
				return nil
			}

			st, closeStore, err := openRunStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			if rollbacks {
				attempts, err := st.ListRollbackAttempts(cmd.Context(), string(cfg.Environment), limit)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Fprintf(out, "No rollback attempts recorded for %s.\n", cfg.Environment)
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tSERVICE\tFROM\tTO\tSTATUS\tREASON")
				for _, a := range attempts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						a.StartedAt.UTC().Format(time.RFC3339),
						a.Service, a.FromReference, a.ToReference, a.Status, a.FailureReason)
				}
				return tw.Flush()
			}

			runs, err := st.ListRuns(cmd.Context(), string(cfg.Environment), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(out, "No verification runs recorded for %s.\n", cfg.Environment)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tRUN\tDECISION\tPASS RATE\tP/W/F/S\tARTIFACT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s%%\t%d/%d/%d/%d\t%s\n",
					r.FinishedAt.UTC().Format(time.RFC3339),
					shortRunID(r.RunID),
					r.OverallStatus,
					r.PassRate.Mul(decimal.NewFromInt(100)).StringFixed(2),
					r.Totals.Passed, r.Totals.Warned, r.Totals.Failed, r.Totals.Skipped,
					r.ArtifactPath)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum rows to list")
	cmd.Flags().BoolVar(&rollbacks, "rollbacks", false, "list rollback attempts instead of verification runs")
	return cmd
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
