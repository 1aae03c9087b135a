// Package rollback drives the confirm-mutate-stabilize-reverify state
// machine against the infrastructure control plane. A rollback is never
// triggered automatically: callers must supply an explicit confirmation
// token before any mutation happens, and a FAILED attempt is terminal and
// escalated rather than retried.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/internal/controlplane"
	"github.com/NomadCrew/release-gate/internal/executor"
	"github.com/NomadCrew/release-gate/internal/store"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

// EscalationNotifier is how a terminal FAILED attempt reaches a human.
type EscalationNotifier interface {
	RollbackFailed(ctx context.Context, attempt *types.RollbackAttempt) error
}

// sleepFn is swapped in tests to avoid real stabilization waits.
var sleepFn = sleepWithContext

// Orchestrator executes confirmed rollback plans one service at a time.
// Each service walks PENDING -> MUTATED -> STABILIZING -> VERIFIED, or
// drops to FAILED from any state; every transition is persisted so a crash
// mid-rollback still leaves an audit trail.
type Orchestrator struct {
	cp       controlplane.ControlPlane
	exec     *executor.Executor
	store    store.RunStore
	notifier EscalationNotifier
	lock     RunLock
	log      *zap.SugaredLogger
}

// New creates an orchestrator. All dependencies are required; callers wire
// the in-memory store and process-local lock when Postgres or Redis are not
// configured.
func New(cp controlplane.ControlPlane, exec *executor.Executor, st store.RunStore, notifier EscalationNotifier, lock RunLock) *Orchestrator {
	return &Orchestrator{
		cp:       cp,
		exec:     exec,
		store:    st,
		notifier: notifier,
		lock:     lock,
		log:      logger.GetLogger().Named("rollback"),
	}
}

// Execute runs the plan against every target service. runID links the
// attempts to the verification run that motivated them (may be empty).
// verifyChecks is the minimal health subset re-run after stabilization.
// Services are processed in name order; one service failing does not stop
// the others, but any failure makes the overall result an error.
func (o *Orchestrator) Execute(ctx context.Context, plan *types.RollbackPlan, runID string, verifyChecks []types.Check) ([]types.RollbackAttempt, error) {
	if plan == nil || len(plan.Targets) == 0 {
		return nil, apperrors.ValidationFailed("empty_plan", "rollback plan has no target services")
	}
	if plan.ConfirmationToken == "" {
		return nil, apperrors.ValidationFailed("missing_confirmation",
			"rollback requires an explicit confirmation token; none was supplied")
	}

	services := make([]string, 0, len(plan.Targets))
	for service := range plan.Targets {
		services = append(services, service)
	}
	sort.Strings(services)

	var (
		attempts []types.RollbackAttempt
		errs     []error
	)
	for _, service := range services {
		release, err := o.lock.Acquire(ctx, service)
		if err != nil {
			o.log.Warnw("Skipping service, rollback lock not acquired",
				"service", service, "error", err)
			errs = append(errs, err)
			continue
		}

		attempt := o.rollbackService(ctx, plan, runID, service, verifyChecks)
		release()

		attempts = append(attempts, *attempt)
		if attempt.Status == types.RollbackStateFailed {
			errs = append(errs, fmt.Errorf("rollback of %s failed: %s", service, attempt.FailureReason))
		}
	}

	return attempts, errors.Join(errs...)
}

// rollbackService walks one service through the state machine. The returned
// attempt is always terminal (VERIFIED or FAILED).
func (o *Orchestrator) rollbackService(ctx context.Context, plan *types.RollbackPlan, runID, service string, verifyChecks []types.Check) *types.RollbackAttempt {
	attempt := &types.RollbackAttempt{
		ID:          uuid.New().String(),
		RunID:       runID,
		Environment: plan.Environment,
		Service:     service,
		ToReference: plan.Targets[service],
		Status:      types.RollbackStatePending,
		StartedAt:   time.Now().UTC(),
	}

	// Best-effort read of the reference we are leaving; a dead control
	// plane will surface properly at the mutation step.
	if status, err := o.cp.GetServiceStatus(ctx, service); err == nil {
		attempt.FromReference = status.ActiveReference
	} else {
		o.log.Warnw("Could not read current reference before rollback",
			"service", service, "error", err)
	}
	o.saveAttempt(ctx, attempt)

	if err := o.mutate(ctx, plan, attempt); err != nil {
		return o.fail(ctx, attempt, err)
	}
	if err := o.stabilize(ctx, plan, attempt); err != nil {
		return o.fail(ctx, attempt, err)
	}
	if err := o.verify(ctx, plan, attempt, verifyChecks); err != nil {
		return o.fail(ctx, attempt, err)
	}

	now := time.Now().UTC()
	attempt.Status = types.RollbackStateVerified
	attempt.CompletedAt = &now
	o.saveAttempt(ctx, attempt)
	o.log.Infow("Rollback verified",
		"service", service,
		"fromReference", attempt.FromReference,
		"toReference", attempt.ToReference)
	return attempt
}

// mutate performs the PENDING -> MUTATED transition. The confirmation token
// is re-checked at this boundary: without it no control plane call is made.
func (o *Orchestrator) mutate(ctx context.Context, plan *types.RollbackPlan, attempt *types.RollbackAttempt) error {
	if plan.ConfirmationToken == "" {
		return apperrors.ValidationFailed("missing_confirmation",
			"refusing to mutate infrastructure without a confirmation token")
	}

	o.log.Infow("Pointing service at previous reference",
		"service", attempt.Service,
		"toReference", attempt.ToReference)
	if err := o.cp.UpdateServiceReference(ctx, attempt.Service, attempt.ToReference); err != nil {
		return apperrors.NewRollbackMutationError(attempt.Service, err)
	}

	now := time.Now().UTC()
	attempt.Status = types.RollbackStateMutated
	attempt.MutatedAt = &now
	o.saveAttempt(ctx, attempt)
	return nil
}

// stabilize performs MUTATED -> STABILIZING and waits out the window. A
// freshly mutated service is not instantly consistent, so verification
// before the window closes would read stale health.
func (o *Orchestrator) stabilize(ctx context.Context, plan *types.RollbackPlan, attempt *types.RollbackAttempt) error {
	now := time.Now().UTC()
	attempt.Status = types.RollbackStateStabilizing
	attempt.StabilizingAt = &now
	o.saveAttempt(ctx, attempt)

	window := plan.StabilizationWindow
	if window < 0 {
		window = 0
	}
	o.log.Infow("Waiting for service to stabilize",
		"service", attempt.Service,
		"window", window)
	if err := sleepFn(ctx, window); err != nil {
		return apperrors.Wrap(err, apperrors.RollbackVerificationTimeout,
			fmt.Sprintf("canceled while waiting for %s to stabilize; service left unverified on %s",
				attempt.Service, attempt.ToReference))
	}
	return nil
}

// verify re-runs the health subset through the check executor, polling a
// bounded number of times. All checks passing completes the attempt; an
// exhausted poll budget is terminal.
func (o *Orchestrator) verify(ctx context.Context, plan *types.RollbackPlan, attempt *types.RollbackAttempt, verifyChecks []types.Check) error {
	if len(verifyChecks) == 0 {
		return apperrors.New(apperrors.RollbackVerificationTimeout,
			"no health checks available to verify the rollback", "")
	}

	polls := plan.VerifyPolls
	if polls < 1 {
		polls = 1
	}

	for poll := 1; poll <= polls; poll++ {
		results := make([]types.CheckResult, 0, len(verifyChecks))
		for _, check := range verifyChecks {
			results = append(results, o.exec.Execute(ctx, check))
		}
		attempt.LastHealthOutput = healthSummary(results)
		o.saveAttempt(ctx, attempt)

		if allPassing(results) {
			o.log.Infow("Post-rollback health check passed",
				"service", attempt.Service,
				"poll", poll)
			return nil
		}
		o.log.Warnw("Post-rollback health check not passing yet",
			"service", attempt.Service,
			"poll", poll,
			"maxPolls", polls,
			"results", attempt.LastHealthOutput)

		if poll < polls {
			if err := sleepFn(ctx, plan.VerifyInterval); err != nil {
				return apperrors.Wrap(err, apperrors.RollbackVerificationTimeout,
					fmt.Sprintf("canceled while polling health of %s", attempt.Service))
			}
		}
	}
	return apperrors.NewRollbackVerificationTimeout(attempt.Service, polls)
}

// fail marks the attempt terminally FAILED, persists it, and escalates.
func (o *Orchestrator) fail(ctx context.Context, attempt *types.RollbackAttempt, cause error) *types.RollbackAttempt {
	now := time.Now().UTC()
	attempt.Status = types.RollbackStateFailed
	attempt.FailureReason = cause.Error()
	attempt.CompletedAt = &now
	o.saveAttempt(ctx, attempt)

	o.log.Errorw("Rollback failed, manual intervention required",
		"service", attempt.Service,
		"fromReference", attempt.FromReference,
		"toReference", attempt.ToReference,
		"reason", attempt.FailureReason,
		"lastHealth", attempt.LastHealthOutput)

	if err := o.notifier.RollbackFailed(ctx, attempt); err != nil {
		o.log.Errorw("Failed to send rollback escalation", "error", err)
	}
	return attempt
}

// saveAttempt persists the current snapshot. Persistence failures are
// logged, not fatal: losing history must not abort a live rollback.
func (o *Orchestrator) saveAttempt(ctx context.Context, attempt *types.RollbackAttempt) {
	if err := o.store.SaveRollbackAttempt(ctx, attempt); err != nil {
		o.log.Errorw("Failed to persist rollback attempt",
			"attemptId", attempt.ID,
			"service", attempt.Service,
			"error", err)
	}
}

// healthSummary flattens results into one line for the audit record.
func healthSummary(results []types.CheckResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Status == types.CheckStatusPass {
			parts = append(parts, fmt.Sprintf("%s=%s", r.CheckID, r.Status))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%s(%s)", r.CheckID, r.Status, r.Message))
		}
	}
	return strings.Join(parts, ", ")
}

func allPassing(results []types.CheckResult) bool {
	for _, r := range results {
		if r.Status != types.CheckStatusPass {
			return false
		}
	}
	return true
}

// sleepWithContext sleeps for the duration unless the context ends first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
