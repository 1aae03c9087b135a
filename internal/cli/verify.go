package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/NomadCrew/release-gate/config"
	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/executor"
	"github.com/NomadCrew/release-gate/internal/gate"
	"github.com/NomadCrew/release-gate/internal/notify"
	"github.com/NomadCrew/release-gate/internal/report"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

func newVerifyCmd(opts *options) *cobra.Command {
	var (
		outputDir   string
		parallelism int
		budget      time.Duration
		categories  []string
		archive     bool
		manifest    string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the verification pass and decide the release gate",
		Long: `verify runs every registered check against the target environment,
aggregates the results into a gate decision, and writes the report artifact.
The process exits 0 on GO, 2 on CONDITIONAL_GO, and 1 on NO_GO so calling
pipelines can branch on the outcome directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Report.OutputDir = outputDir
			}
			if cmd.Flags().Changed("parallelism") {
				cfg.Executor.Parallelism = parallelism
			}
			if cmd.Flags().Changed("budget") {
				cfg.Executor.BudgetSeconds = int(budget.Seconds())
			}
			if cmd.Flags().Changed("archive") {
				cfg.Archive.Enabled = archive
			}
			if cmd.Flags().Changed("manifest") {
				cfg.Registry.ManifestPath = manifest
			}
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			return runVerify(cmd, cfg, cats)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the report artifact")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "check worker count")
	cmd.Flags().DurationVar(&budget, "budget", 0, "wall-clock budget for the whole pass (e.g. 10m)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil,
		"run only these check categories ("+categoryNames()+")")
	cmd.Flags().BoolVar(&archive, "archive", false, "upload the report artifact to object storage")
	cmd.Flags().StringVar(&manifest, "manifest", "", "check manifest overlay path")

	return cmd
}

func runVerify(cmd *cobra.Command, cfg *config.Config, cats []types.CheckCategory) error {
	ctx := cmd.Context()
	log := logger.GetLogger().Named("cli")
	started := time.Now().UTC()

	client := buildProbeClient(cfg)
	cp := buildControlPlane(cfg)
	reg, err := buildRegistry(cfg, client, cp)
	if err != nil {
		return err
	}

	checks := reg.Filter(cats)
	if len(checks) == 0 {
		return apperrors.ValidationFailed("no_checks", "category filter matched no registered checks")
	}

	log.Infow("Verification pass starting",
		"environment", cfg.Environment,
		"target", cfg.Target.BaseURL,
		"checks", len(checks),
		"parallelism", cfg.Executor.Parallelism,
		"budget_seconds", cfg.Executor.BudgetSeconds)

	passCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.Executor.BudgetSeconds)*time.Second)
	defer cancel()

	pool := executor.NewPool(passCtx, cfg.Executor, executor.New())
	results := pool.Run(checks)

	rep := gate.BuildReport(string(cfg.Environment), results)
	finished := time.Now().UTC()

	// Every run yields an artifact, even after cancellation or partial
	// failure; operators need the evidence most when things went wrong.
	artifactPath, err := report.WriteArtifact(cfg.Report.OutputDir, rep)
	if err != nil {
		log.Errorw("Failed to write report artifact", "error", err)
	}

	if cfg.Archive.Enabled && artifactPath != "" {
		archiveReport(ctx, cfg, artifactPath, rep)
	}

	recordRun(ctx, cfg, &types.VerificationRun{
		RunID:         rep.RunID,
		Environment:   rep.Environment,
		OverallStatus: rep.OverallStatus,
		PassRate:      rep.PassRate,
		Totals:        rep.Totals,
		StartedAt:     started,
		FinishedAt:    finished,
		ArtifactPath:  artifactPath,
		Report:        rep,
	})

	if rep.OverallStatus == types.GateStatusNoGo && cfg.Email.Enabled {
		if err := notify.NewService(&cfg.Email).GateBlocked(ctx, rep); err != nil {
			log.Warnw("Gate escalation email failed", "error", err)
		}
	}

	printGateSummary(cmd.OutOrStdout(), rep, artifactPath)

	if code := rep.OverallStatus.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// archiveReport uploads the artifact; archiving problems degrade the run
// but never change its outcome.
func archiveReport(ctx context.Context, cfg *config.Config, artifactPath string, rep *types.GateReport) {
	log := logger.GetLogger().Named("cli")
	archiver, err := report.NewArchiver(ctx, cfg.Archive)
	if err != nil {
		log.Warnw("Report archiving unavailable", "error", err)
		return
	}
	key, err := archiver.Archive(ctx, artifactPath, rep)
	if err != nil {
		log.Warnw("Report archiving failed", "error", err)
		return
	}
	log.Infow("Report archived", "bucket", cfg.Archive.Bucket, "key", key)
}

// recordRun persists the audit record; history problems degrade the run but
// never change its outcome.
func recordRun(ctx context.Context, cfg *config.Config, run *types.VerificationRun) {
	log := logger.GetLogger().Named("cli")
	st, closeStore, err := openRunStore(ctx, cfg)
	if err != nil {
		log.Warnw("History store unavailable, run not recorded", "error", err)
		return
	}
	defer closeStore()
	if err := st.SaveRun(ctx, run); err != nil {
		log.Warnw("Failed to record run history", "error", err)
	}
}

func printGateSummary(w io.Writer, rep *types.GateReport, artifactPath string) {
	pct := rep.PassRate.Mul(decimal.NewFromInt(100))
	fmt.Fprintf(w, "\nEnvironment: %s\n", rep.Environment)
	fmt.Fprintf(w, "Checks:      %d total, %d passed, %d warned, %d failed, %d skipped\n",
		rep.Totals.Total, rep.Totals.Passed, rep.Totals.Warned, rep.Totals.Failed, rep.Totals.Skipped)
	fmt.Fprintf(w, "Pass rate:   %s%% (skips excluded)\n", pct.StringFixed(2))
	fmt.Fprintf(w, "Decision:    %s\n", rep.OverallStatus)
	if artifactPath != "" {
		fmt.Fprintf(w, "Report:      %s\n", artifactPath)
	}
	for _, failed := range rep.FailedResults() {
		fmt.Fprintf(w, "  FAIL %s: %s\n", failed.CheckID, failed.Message)
	}
}
