// Package executor runs registered checks with per-check timeouts,
// bounded exponential backoff on transient failures, and a worker pool for
// concurrent execution. It holds no state across invocations.
package executor

import (
	"context"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
	"go.uber.org/zap"
)

// sleepFn is swapped out by tests to observe backoff without waiting.
var sleepFn = sleepWithContext

// Executor runs one check to completion, retrying transient failures per
// the check's retry policy.
type Executor struct {
	logger  *zap.SugaredLogger
	metrics *executorMetrics
}

// New creates a check executor.
func New() *Executor {
	return &Executor{
		logger:  logger.GetLogger().Named("executor"),
		metrics: newExecutorMetrics(),
	}
}

// Execute runs a single check. Transient network errors are retried with
// exponential backoff until the policy's attempt budget is spent; exhausting
// it yields FAIL with the last error, never SKIP. An unmet precondition
// yields SKIP. The check's timeout spans all attempts combined.
func (e *Executor) Execute(ctx context.Context, check types.Check) types.CheckResult {
	start := time.Now()

	checkCtx := ctx
	var cancel context.CancelFunc
	if check.Timeout > 0 {
		checkCtx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}

	maxAttempts := check.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		outcome, err := check.Run(checkCtx)
		if err == nil {
			return e.result(check, outcome.Status, outcome.Message, attempts, start)
		}

		if apperrors.IsConfigurationMissing(err) {
			e.logger.Infow("Check precondition not met, skipping",
				"check", check.ID,
				"reason", err.Error())
			return e.result(check, types.CheckStatusSkip, err.Error(), attempts, start)
		}

		if !apperrors.IsTransient(err) {
			e.logger.Warnw("Check failed",
				"check", check.ID,
				"attempt", attempt,
				"error", err)
			return e.result(check, types.CheckStatusFail, err.Error(), attempts, start)
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		// Operator cancellation aborts the attempt loop; the pass records
		// whatever evidence was collected so far.
		if ctx.Err() != nil {
			return e.result(check, types.CheckStatusSkip,
				"aborted before completion: "+ctx.Err().Error(), attempts, start)
		}

		delay := check.Retry.Delay(attempt)
		e.metrics.retries.Inc()
		e.logger.Warnw("Transient failure, backing off",
			"check", check.ID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err)

		if err := sleepFn(checkCtx, delay); err != nil {
			// The per-check budget ran out mid-backoff: the check never
			// succeeded, so it fails rather than silently degrading.
			if ctx.Err() != nil {
				return e.result(check, types.CheckStatusSkip,
					"aborted before completion: "+ctx.Err().Error(), attempts, start)
			}
			break
		}
	}

	msg := "check never succeeded"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return e.result(check, types.CheckStatusFail, msg, attempts, start)
}

func (e *Executor) result(check types.Check, status types.CheckStatus, message string, attempts int, start time.Time) types.CheckResult {
	return types.CheckResult{
		CheckID:     check.ID,
		Category:    check.Category,
		Criticality: check.Criticality,
		Status:      status,
		Message:     message,
		Remediation: check.Remediation,
		DurationMs:  time.Since(start).Milliseconds(),
		Attempts:    attempts,
		Timestamp:   time.Now().UTC(),
	}
}

// sleepWithContext waits for d unless the context ends first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
