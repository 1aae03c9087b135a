package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NomadCrew/release-gate/config"
	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/executor"
	"github.com/NomadCrew/release-gate/internal/notify"
	"github.com/NomadCrew/release-gate/internal/rollback"
	"github.com/NomadCrew/release-gate/internal/store/memory"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

func newRollbackCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Plan and execute confirmed rollbacks",
		Long: `rollback never runs automatically: plan is read-only and proposes the
previous reference for each service; execute mutates infrastructure and
requires an explicit --confirm-token.`,
	}
	cmd.AddCommand(newRollbackPlanCmd(opts), newRollbackExecuteCmd(opts))
	return cmd
}

func newRollbackPlanCmd(opts *options) *cobra.Command {
	var services []string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Propose rollback targets (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cp := buildControlPlane(cfg)
			if cp == nil {
				return apperrors.NewConfigurationMissing("control plane API URL")
			}
			targets := cfg.Target.Services
			if len(services) > 0 {
				targets = services
			}

			plan, err := rollback.BuildPlan(cmd.Context(), cp, string(cfg.Environment), targets, cfg.Rollback)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rollback plan for %s (no changes made):\n\n", plan.Environment)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tROLL BACK TO")
			for _, service := range sortedTargets(plan.Targets) {
				fmt.Fprintf(tw, "%s\t%s\n", service, plan.Targets[service])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nStabilization window: %s, verification: %d polls every %s\n",
				plan.StabilizationWindow, plan.VerifyPolls, plan.VerifyInterval)
			fmt.Fprintln(out, "Execute with: release-gate rollback execute --confirm-token <token>")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&services, "services", nil,
		"plan only these services (default: all configured target services)")
	return cmd
}

func newRollbackExecuteCmd(opts *options) *cobra.Command {
	var (
		confirmToken string
		runID        string
		services     []string
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a confirmed rollback (mutates infrastructure)",
		Long: `execute re-resolves the rollback targets, points each service at its
previous reference, waits out the stabilization window, and re-runs the
health subset until the service verifies or the poll budget is spent. A
failed attempt is terminal and escalated; it is never retried silently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			targets := cfg.Target.Services
			if len(services) > 0 {
				targets = services
			}
			return runRollbackExecute(cmd, cfg, targets, confirmToken, runID)
		},
	}

	cmd.Flags().StringVar(&confirmToken, "confirm-token", "",
		"explicit confirmation token; no mutation happens without it")
	cmd.Flags().StringVar(&runID, "run-id", "",
		"verification run that motivated this rollback (links the audit records)")
	cmd.Flags().StringSliceVar(&services, "services", nil,
		"roll back only these services (default: all configured target services)")
	_ = cmd.MarkFlagRequired("confirm-token")
	return cmd
}

func runRollbackExecute(cmd *cobra.Command, cfg *config.Config, targets []string, confirmToken, runID string) error {
	ctx := cmd.Context()
	log := logger.GetLogger().Named("cli")

	cp := buildControlPlane(cfg)
	if cp == nil {
		return apperrors.NewConfigurationMissing("control plane API URL")
	}

	plan, err := rollback.BuildPlan(ctx, cp, string(cfg.Environment), targets, cfg.Rollback)
	if err != nil {
		return err
	}
	plan.ConfirmationToken = confirmToken

	// The post-rollback verification re-runs the registry's health subset.
	client := buildProbeClient(cfg)
	reg, err := buildRegistry(cfg, client, cp)
	if err != nil {
		return err
	}
	verifyChecks := reg.HealthSubset()

	// A broken history store must not block an emergency rollback; fall
	// back to in-memory audit records and say so loudly.
	st, closeStore, err := openRunStore(ctx, cfg)
	if err != nil {
		log.Errorw("History store unavailable, rollback audit trail will not be persisted",
			"error", err)
		st, closeStore = memory.NewRunStore(), func() {}
	}
	defer closeStore()

	lock, closeLock, err := buildRunLock(cfg)
	if err != nil {
		return err
	}
	defer closeLock()

	orch := rollback.New(cp, executor.New(), st, notify.NewService(&cfg.Email), lock)
	attempts, execErr := orch.Execute(ctx, plan, runID, verifyChecks)

	printAttempts(cmd, attempts)
	return execErr
}

func printAttempts(cmd *cobra.Command, attempts []types.RollbackAttempt) {
	if len(attempts) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tFROM\tTO\tSTATUS\tDETAIL")
	for _, a := range attempts {
		detail := a.FailureReason
		if a.Status == types.RollbackStateVerified {
			detail = "health subset passing"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.Service, a.FromReference, a.ToReference, a.Status, detail)
	}
	_ = tw.Flush()
}

func sortedTargets(targets map[string]string) []string {
	services := make([]string, 0, len(targets))
	for service := range targets {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}
