package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NomadCrew/release-gate/config"
	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/types"
)

func poolConfig(parallelism, queueSize int) config.ExecutorConfig {
	return config.ExecutorConfig{
		Parallelism:            parallelism,
		QueueSize:              queueSize,
		BudgetSeconds:          300,
		ShutdownTimeoutSeconds: 5,
	}
}

func instantPass(id string) types.Check {
	return testCheck(id, types.RetryPolicy{MaxAttempts: 1},
		func(ctx context.Context) (types.CheckOutcome, error) {
			return types.CheckOutcome{Status: types.CheckStatusPass, Message: "ok"}, nil
		})
}

func TestPoolRunPreservesRegistrationOrder(t *testing.T) {
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(4, 16), New())

	// Later checks finish first so completion order differs from input order.
	checks := make([]types.Check, 6)
	for i := range checks {
		delay := time.Duration(len(checks)-i) * 5 * time.Millisecond
		checks[i] = testCheck(checkID(i), types.RetryPolicy{MaxAttempts: 1},
			func(ctx context.Context) (types.CheckOutcome, error) {
				time.Sleep(delay)
				return types.CheckOutcome{Status: types.CheckStatusPass, Message: "ok"}, nil
			})
	}

	results := pool.Run(checks)

	require.Len(t, results, len(checks))
	for i, r := range results {
		assert.Equal(t, checks[i].ID, r.CheckID, "result %d out of order", i)
		assert.Equal(t, types.CheckStatusPass, r.Status)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(2, 16), New())

	var active, peak int32
	checks := make([]types.Check, 8)
	for i := range checks {
		checks[i] = testCheck(checkID(i), types.RetryPolicy{MaxAttempts: 1},
			func(ctx context.Context) (types.CheckOutcome, error) {
				now := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return types.CheckOutcome{Status: types.CheckStatusPass}, nil
			})
	}

	results := pool.Run(checks)

	require.Len(t, results, len(checks))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2),
		"more checks in flight than configured parallelism")
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestPoolSequentialWhenParallelismOne(t *testing.T) {
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(1, 16), New())

	var mu sync.Mutex
	var executed []string
	checks := make([]types.Check, 4)
	for i := range checks {
		id := checkID(i)
		checks[i] = testCheck(id, types.RetryPolicy{MaxAttempts: 1},
			func(ctx context.Context) (types.CheckOutcome, error) {
				mu.Lock()
				executed = append(executed, id)
				mu.Unlock()
				return types.CheckOutcome{Status: types.CheckStatusPass}, nil
			})
	}

	results := pool.Run(checks)

	require.Len(t, results, 4)
	assert.Equal(t, []string{checkID(0), checkID(1), checkID(2), checkID(3)}, executed,
		"a single worker runs checks strictly in registration order")
}

func TestPoolCancellationYieldsPartialEvidence(t *testing.T) {
	stubSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(ctx, poolConfig(1, 16), New())

	blocking := func(ctx context.Context) (types.CheckOutcome, error) {
		if ctx.Err() != nil {
			return types.CheckOutcome{}, apperrors.NewTransientNetworkError("probe", ctx.Err())
		}
		<-ctx.Done()
		return types.CheckOutcome{}, apperrors.NewTransientNetworkError("probe", ctx.Err())
	}
	retry := types.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, Multiplier: 2.0}
	checks := []types.Check{
		instantPass(checkID(0)),
		testCheck(checkID(1), retry, blocking),
		testCheck(checkID(2), retry, blocking),
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := pool.Run(checks)

	require.Len(t, results, 3)
	// Completed evidence survives the abort; everything else is SKIP,
	// whether it was mid-flight or never dequeued.
	assert.Equal(t, types.CheckStatusPass, results[0].Status)
	assert.Equal(t, types.CheckStatusSkip, results[1].Status)
	assert.Equal(t, types.CheckStatusSkip, results[2].Status)
	for _, r := range results[1:] {
		assert.NotEmpty(t, r.Message)
	}
}

func TestPoolCanceledBeforeRunSkipsEverything(t *testing.T) {
	stubSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool := NewPool(ctx, poolConfig(2, 16), New())

	var calls int32
	checks := make([]types.Check, 3)
	for i := range checks {
		checks[i] = testCheck(checkID(i), types.RetryPolicy{MaxAttempts: 1},
			func(ctx context.Context) (types.CheckOutcome, error) {
				atomic.AddInt32(&calls, 1)
				return types.CheckOutcome{Status: types.CheckStatusPass}, nil
			})
	}

	results := pool.Run(checks)

	require.Len(t, results, 3)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	for i, r := range results {
		assert.Equal(t, types.CheckStatusSkip, r.Status)
		assert.Equal(t, checks[i].ID, r.CheckID)
		assert.Contains(t, r.Message, "not executed")
		assert.Zero(t, r.Attempts)
	}
}

func TestPoolQueueFullDropsToSkip(t *testing.T) {
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(1, 1), New())

	blocker := make(chan struct{})
	checks := make([]types.Check, 4)
	for i := range checks {
		checks[i] = testCheck(checkID(i), types.RetryPolicy{MaxAttempts: 1},
			func(ctx context.Context) (types.CheckOutcome, error) {
				<-blocker
				return types.CheckOutcome{Status: types.CheckStatusPass}, nil
			})
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(blocker)
	}()

	results := pool.Run(checks)

	require.Len(t, results, 4)
	// With one blocked worker and a single queue slot, at most two checks are
	// ever accepted; the rest are dropped and surface as SKIP.
	var passed, skipped int
	for _, r := range results {
		switch r.Status {
		case types.CheckStatusPass:
			passed++
		case types.CheckStatusSkip:
			skipped++
			assert.Contains(t, r.Message, "not executed")
		default:
			t.Fatalf("unexpected status %s for %s", r.Status, r.CheckID)
		}
	}
	assert.LessOrEqual(t, passed, 2)
	assert.GreaterOrEqual(t, skipped, 2)
}

func TestPoolStartIsIdempotent(t *testing.T) {
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(2, 16), New())

	pool.Start()
	pool.Start()
	assert.True(t, pool.IsRunning())

	results := pool.Run([]types.Check{instantPass(checkID(0)), instantPass(checkID(1))})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.CheckStatusPass, r.Status)
	}
}

func TestPoolMetrics(t *testing.T) {
	resetExecutorMetricsForTesting()
	stubSleep(t)
	pool := NewPool(context.Background(), poolConfig(2, 16), New())

	checks := []types.Check{
		instantPass(checkID(0)),
		testCheck(checkID(1), types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0},
			func(ctx context.Context) (types.CheckOutcome, error) {
				return types.CheckOutcome{}, apperrors.NewTransientNetworkError("probe", assert.AnError)
			}),
	}

	results := pool.Run(checks)
	require.Len(t, results, 2)
	require.Equal(t, types.CheckStatusPass, results[0].Status)
	require.Equal(t, types.CheckStatusFail, results[1].Status)

	m := newExecutorMetrics()
	assert.Equal(t, float64(2), testCounterValue(t, m.completedChecks))
	assert.Equal(t, float64(1), testCounterValue(t, m.failedChecks))
	assert.Equal(t, float64(2), testCounterValue(t, m.retries), "two backoffs for three attempts")
	assert.Equal(t, float64(0), testCounterValue(t, m.droppedChecks))
}

func checkID(i int) string {
	return []string{
		"infra.api.health",
		"connectivity.api.liveness",
		"connectivity.api.readiness",
		"auth.jwks.keys",
		"feature.trips.list",
		"feature.locations.ping",
		"performance.health.latency",
		"connectivity.api.cors",
	}[i]
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}
