// Package worker is the execution engine for engine/queue: it polls for
// runnable jobs and dispatches each to engine/jobs.Dispatcher. It is a
// direct generalization of the teacher's internal/jobs/worker.Worker
// (job_run polling, heartbeats, panic recovery) onto the narrower
// engine/queue.Queue contract and the engine's own four job types in
// place of a job_type -> arbitrary-handler registry.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/observability"
	"github.com/arcwelder/bpmengine/internal/platform/envutil"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// Dispatch runs one claimed job to completion; engine/jobs.Dispatcher
// satisfies this directly via its Dispatch method.
type Dispatch func(ctx context.Context, job queue.Job) error

// Worker is infrastructure: it knows nothing about initiate/schedule/
// transit/acknowledge semantics, only how to claim a queue.Job, run it
// through dispatch, and record the outcome. All engine logic lives in
// engine/jobs, reached only through Dispatch.
type Worker struct {
	q        queue.Queue
	dispatch Dispatch
	metrics  *observability.Metrics
	log      *logger.Logger
	cfg      Config
}

// Config bounds the worker pool's polling behavior.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	Heartbeat    time.Duration
	// JobTimeout bounds a single dispatch call; zero disables the
	// deadline. Exceeding it surfaces to engine/jobs as
	// context.DeadlineExceeded, which schedule.go maps to the timeout
	// status code (spec.md section 7).
	JobTimeout time.Duration
}

// DefaultConfig reads WORKER_CONCURRENCY (default 4), matching the
// teacher's getEnvInt("WORKER_CONCURRENCY", 4) knob.
func DefaultConfig() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: time.Second,
		Heartbeat:    30 * time.Second,
	}
}

// New wires a Worker against q and dispatch, using cfg (DefaultConfig if
// cfg is the zero value's PollInterval/Heartbeat are unset).
func New(q queue.Queue, dispatch Dispatch, cfg Config, metrics *observability.Metrics, log *logger.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Worker{q: q, dispatch: dispatch, metrics: metrics, log: log.With("component", "engine.worker"), cfg: cfg}
}

// Start launches cfg.Concurrency independent poll loops and returns
// immediately; each loop runs until ctx is canceled. The queue's own
// claim (SKIP LOCKED for dbqueue, push-dispatch for temporalqueue)
// guarantees a job is only run by one worker at a time, so the pool size
// is purely a throughput knob.
func (w *Worker) Start(ctx context.Context) {
	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting worker pool", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		workerID := uuid.NewString()
		go w.runLoop(ctx, workerID)
	}
}

// runLoop polls the queue every pollInterval, claims at most one job,
// and dispatches it with heartbeat and panic protection. A panic or
// error from dispatch fails the job as retryable: the engine's own jobs
// are idempotent (spec.md section 6), so redelivery is always safe.
func (w *Worker) runLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.q.Claim(ctx, workerID)
			if err != nil {
				w.log.Warn("claim failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.run(ctx, workerID, *job)
		}
	}
}

func (w *Worker) run(ctx context.Context, workerID string, job queue.Job) {
	stop := w.startHeartbeat(ctx, job.ID)
	defer stop()

	dispatchCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "worker_id", workerID, "job_id", job.ID, "job_type", job.Type, "panic", r)
				w.metrics.IncWorkerError()
				runErr = panicError{val: r}
			}
		}()
		runErr = w.dispatch(dispatchCtx, job)
	}()

	if runErr != nil {
		w.log.Warn("job failed", "worker_id", workerID, "job_id", job.ID, "job_type", job.Type, "error", runErr)
		if err := w.q.Fail(ctx, job.ID, runErr, true); err != nil {
			w.log.Error("failed to record job failure", "job_id", job.ID, "error", err)
		}
		return
	}
	if err := w.q.Complete(ctx, job.ID); err != nil {
		w.log.Error("failed to record job completion", "job_id", job.ID, "error", err)
	}
}

// startHeartbeat spawns a goroutine that periodically extends the job's
// claim so a long-running dispatch isn't mistaken for abandoned and
// reclaimed by another worker. Returns a stop function.
func (w *Worker) startHeartbeat(ctx context.Context, jobID int64) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = w.q.Heartbeat(ctx, jobID)
			}
		}
	}()
	return func() { close(done) }
}

// panicError wraps a recovered panic value without leaking its contents
// into stored error text, matching the teacher's panicError.
type panicError struct{ val any }

func (e panicError) Error() string { return "panic: unexpected error" }
