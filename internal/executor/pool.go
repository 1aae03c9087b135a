package executor

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/release-gate/config"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
	"go.uber.org/zap"
)

// checkJob pairs a check with its registration index so results come back
// in registry order regardless of completion order.
type checkJob struct {
	index int
	check types.Check
}

type indexedResult struct {
	index  int
	result types.CheckResult
}

// Pool runs the checks of one verification pass on a bounded set of workers.
// Parallelism 1 degenerates to sequential execution. The pass context
// carries the overall wall-clock budget; checks not executed when it expires
// are recorded as SKIP rather than blocking the run.
type Pool struct {
	jobQueue  chan checkJob
	resultsCh chan indexedResult
	executor  *Executor
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.SugaredLogger
	metrics   *executorMetrics
	config    config.ExecutorConfig
	mu        sync.Mutex
	running   bool
}

// NewPool creates a worker pool for one verification pass. passCtx bounds
// the whole pass; its cancellation or deadline stops workers between checks.
func NewPool(passCtx context.Context, cfg config.ExecutorConfig, exec *Executor) *Pool {
	ctx, cancel := context.WithCancel(passCtx)
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		jobQueue: make(chan checkJob, queueSize),
		executor: exec,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.GetLogger().Named("check-pool"),
		metrics:  newExecutorMetrics(),
		config:   cfg,
	}
}

// Start launches the worker goroutines. Calling Start() multiple times is safe
// and will only start workers once.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("Check pool already running")
		return
	}
	p.running = true

	workers := p.config.Parallelism
	if workers < 1 {
		workers = 1
	}

	p.logger.Infow("Starting check pool",
		"parallelism", workers,
		"queueSize", cap(p.jobQueue))

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debugw("Worker started", "workerId", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debugw("Worker stopping (pass ended)", "workerId", id)
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				p.logger.Debugw("Worker stopping (queue drained)", "workerId", id)
				return
			}
			p.executeJob(id, job)
		}
	}
}

// executeJob runs a single check with metrics and reports its result.
// The results channel is buffered for every submitted check, so the send
// never blocks even if the pass gave up waiting.
func (p *Pool) executeJob(workerID int, job checkJob) {
	p.metrics.activeWorkers.Inc()
	p.metrics.queueDepth.Dec()

	start := time.Now()
	result := p.executor.Execute(p.ctx, job.check)
	p.resultsCh <- indexedResult{index: job.index, result: result}

	if result.Status == types.CheckStatusFail {
		p.metrics.failedChecks.Inc()
	}
	p.metrics.checkDuration.Observe(time.Since(start).Seconds())
	p.metrics.completedChecks.Inc()
	p.metrics.activeWorkers.Dec()

	p.logger.Infow("Check finished",
		"check", job.check.ID,
		"status", result.Status,
		"attempts", result.Attempts,
		"workerId", workerID,
		"duration_ms", result.DurationMs)
}

// submit adds a check to the queue. Returns false if the queue is full and
// the check was dropped; the dropped slot is later recorded as SKIP.
func (p *Pool) submit(job checkJob) bool {
	select {
	case p.jobQueue <- job:
		p.metrics.queueDepth.Inc()
		return true
	default:
		p.metrics.droppedChecks.Inc()
		p.logger.Warnw("Check dropped - queue full",
			"check", job.check.ID,
			"queueSize", cap(p.jobQueue))
		return false
	}
}

// Run executes all checks and returns their results in input order. Checks
// the pass could not execute (budget exhausted, cancellation, queue drop)
// come back as SKIP so partial evidence still reaches the aggregator.
func (p *Pool) Run(checks []types.Check) []types.CheckResult {
	results := make([]types.CheckResult, len(checks))
	p.resultsCh = make(chan indexedResult, len(checks))
	p.Start()

	for i := range checks {
		if p.ctx.Err() != nil {
			break
		}
		p.submit(checkJob{index: i, check: checks[i]})
	}
	close(p.jobQueue)

	p.collect(results)
	p.cancel()

	for i := range results {
		if results[i].Status == "" {
			results[i] = types.CheckResult{
				CheckID:     checks[i].ID,
				Category:    checks[i].Category,
				Criticality: checks[i].Criticality,
				Status:      types.CheckStatusSkip,
				Message:     "not executed: verification pass ended before this check ran",
				Remediation: checks[i].Remediation,
				Attempts:    0,
				Timestamp:   time.Now().UTC(),
			}
		}
	}
	return results
}

// collect receives worker results until all workers exit, bounded by the
// configured shutdown timeout so a wedged probe cannot hold the run open.
// Only this goroutine writes the result slice.
func (p *Pool) collect(results []types.CheckResult) {
	timeout := time.Duration(p.config.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	workersDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workersDone)
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case r := <-p.resultsCh:
			results[r.index] = r.result
		case <-workersDone:
			p.drain(results)
			return
		case <-deadline.C:
			p.logger.Warn("Worker drain timed out - recording unfinished checks as skipped")
			p.drain(results)
			return
		}
	}
}

// drain empties any buffered results without blocking.
func (p *Pool) drain(results []types.CheckResult) {
	for {
		select {
		case r := <-p.resultsCh:
			results[r.index] = r.result
		default:
			return
		}
	}
}

// QueueDepth returns the current number of checks waiting in the queue.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// IsRunning returns whether the pool has been started.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
