package executor

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

func TestMain(m *testing.M) {
	logger.IsTest = true
	os.Exit(m.Run())
}

// stubSleep replaces the backoff sleep and records requested durations.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFn = orig })
	return &slept
}

func testCheck(id string, retry types.RetryPolicy, run types.ProbeFunc) types.Check {
	return types.Check{
		ID:          id,
		Category:    types.CategoryConnectivity,
		Criticality: types.CriticalityStandard,
		Remediation: "check the target environment",
		Retry:       retry,
		Run:         run,
	}
}

func TestExecutePassFirstAttempt(t *testing.T) {
	stubSleep(t)
	exec := New()

	calls := 0
	check := testCheck("connectivity.api.liveness",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0, MaxDelay: 30 * time.Second},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			return types.CheckOutcome{Status: types.CheckStatusPass, Message: "HTTP 200 in 12ms"}, nil
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, 1, calls)
	assert.Equal(t, types.CheckStatusPass, result.Status)
	assert.Equal(t, "HTTP 200 in 12ms", result.Message)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "connectivity.api.liveness", result.CheckID)
	assert.Equal(t, types.CategoryConnectivity, result.Category)
	assert.Equal(t, types.CriticalityStandard, result.Criticality)
	assert.Equal(t, "check the target environment", result.Remediation)
	assert.False(t, result.Timestamp.IsZero())
}

func TestExecuteRetriesUntilBudgetExhausted(t *testing.T) {
	slept := stubSleep(t)
	exec := New()

	calls := 0
	check := testCheck("infra.api.health",
		types.RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2.0, MaxDelay: 250 * time.Millisecond},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("GET /health", context.DeadlineExceeded)
		})

	result := exec.Execute(context.Background(), check)

	// Exactly MaxAttempts probe calls, one backoff between each pair, the
	// last delay capped at MaxDelay (100ms * 2^2 = 400ms -> 250ms).
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
	}, *slept)

	// Exhausting the retry budget is a FAIL, never a silent SKIP.
	assert.Equal(t, types.CheckStatusFail, result.Status)
	assert.Equal(t, 4, result.Attempts)
	assert.Contains(t, result.Message, "transient network failure during GET /health")
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	slept := stubSleep(t)
	exec := New()

	calls := 0
	check := testCheck("connectivity.api.readiness",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2.0, MaxDelay: 30 * time.Second},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			if calls == 1 {
				return types.CheckOutcome{}, apperrors.NewTransientNetworkError("GET /ready", assert.AnError)
			}
			return types.CheckOutcome{Status: types.CheckStatusPass, Message: "HTTP 200"}, nil
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept)
	assert.Equal(t, types.CheckStatusPass, result.Status)
	assert.Equal(t, 2, result.Attempts)
}

func TestExecuteSkipsWhenPreconditionMissing(t *testing.T) {
	slept := stubSleep(t)
	exec := New()

	check := testCheck("feature.trips.list",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			return types.CheckOutcome{}, apperrors.NewConfigurationMissing("no bearer token configured")
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, types.CheckStatusSkip, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Message, "no bearer token configured")
	assert.Empty(t, *slept, "preconditions are not retried")
}

func TestExecuteFailsFastOnNonTransientError(t *testing.T) {
	slept := stubSleep(t)
	exec := New()

	calls := 0
	check := testCheck("infra.db.migrations",
		types.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			return types.CheckOutcome{}, apperrors.NewCriticalServiceDown("postgres", "schema version mismatch")
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, 1, calls, "non-transient errors are not retried")
	assert.Equal(t, types.CheckStatusFail, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Message, "critical service postgres is down")
	assert.Empty(t, *slept)
}

func TestExecuteSkipsWhenOperatorCancels(t *testing.T) {
	stubSleep(t)
	exec := New()

	ctx, cancel := context.WithCancel(context.Background())
	check := testCheck("performance.health.latency",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			cancel()
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("GET /health", assert.AnError)
		})

	result := exec.Execute(ctx, check)

	assert.Equal(t, types.CheckStatusSkip, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, strings.HasPrefix(result.Message, "aborted before completion:"), result.Message)
}

func TestExecuteFailsWhenTimeoutExpiresMidBackoff(t *testing.T) {
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		return context.DeadlineExceeded
	}
	t.Cleanup(func() { sleepFn = orig })
	exec := New()

	calls := 0
	check := testCheck("connectivity.ws.handshake",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("websocket dial", assert.AnError)
		})

	result := exec.Execute(context.Background(), check)

	// The per-check deadline died during backoff: the check never succeeded,
	// so it fails with the last observed error.
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.CheckStatusFail, result.Status)
	assert.Contains(t, result.Message, "transient network failure during websocket dial")
}

func TestExecuteHonorsPerCheckTimeout(t *testing.T) {
	exec := New()

	check := testCheck("infra.api.health",
		types.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			<-ctx.Done()
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("GET /health", ctx.Err())
		})
	check.Timeout = 30 * time.Millisecond

	start := time.Now()
	result := exec.Execute(context.Background(), check)

	require.Equal(t, types.CheckStatusFail, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	// The deadline spans all attempts: the backoff sleep saw a dead context
	// and the loop ended well before 3 full attempts.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteWarnOutcomePassesThrough(t *testing.T) {
	stubSleep(t)
	exec := New()

	check := testCheck("performance.health.latency",
		types.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, Multiplier: 2.0},
		func(ctx context.Context) (types.CheckOutcome, error) {
			return types.CheckOutcome{Status: types.CheckStatusWarn, Message: "p95 812ms exceeds 500ms"}, nil
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, types.CheckStatusWarn, result.Status)
	assert.Equal(t, "p95 812ms exceeds 500ms", result.Message)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecuteDefaultsToSingleAttempt(t *testing.T) {
	slept := stubSleep(t)
	exec := New()

	calls := 0
	check := testCheck("auth.jwks.keys",
		types.RetryPolicy{},
		func(ctx context.Context) (types.CheckOutcome, error) {
			calls++
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("GET /jwks", assert.AnError)
		})

	result := exec.Execute(context.Background(), check)

	assert.Equal(t, 1, calls)
	assert.Equal(t, types.CheckStatusFail, result.Status)
	assert.Empty(t, *slept)
}
