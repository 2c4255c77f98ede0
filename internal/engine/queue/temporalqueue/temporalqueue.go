// Package temporalqueue is an alternate engine/queue.Queue transport
// for deployments that already run a Temporal cluster, in place of
// dbqueue's Postgres polling. It is grounded on the teacher's
// internal/temporalx client setup and internal/temporalx/jobrun
// workflow/activity shape, reworked from a single generic "tick" job
// into the engine's four explicit entry points.
//
// Temporal dispatches by pushing work directly to a registered
// activity function rather than by being polled, so Claim/Heartbeat/
// Complete/Fail are no-ops here: Enqueue both creates and completes the
// unit of work end to end via ExecuteWorkflow, and the actual dispatch
// happens inside DispatchFunc, registered with StartWorker.
package temporalqueue

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/platform/envutil"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// temporalRetryPolicy bounds how many times Temporal redelivers a failed
// dispatch activity before giving up; the engine's own jobs are already
// idempotent (spec.md section 6), so a handful of retries is enough to
// ride out a transient DB blip without masking a real bug forever.
var temporalRetryPolicy = temporal.RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    time.Minute,
	MaximumAttempts:    10,
}

// activityRegisterOptions names the dispatch activity consistently with
// activityName so Workflow's ExecuteActivity call resolves it.
func activityRegisterOptions() worker.RegisterActivityOptions {
	return worker.RegisterActivityOptions{Name: activityName}
}

// Config mirrors the teacher's temporalx.Config, renamed defaults.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string
}

// LoadConfig reads TEMPORAL_ADDRESS/TEMPORAL_NAMESPACE/TEMPORAL_TASK_QUEUE,
// defaulting to a local dev cluster and the engine's own namespace.
func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "bpmengine"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "bpmengine"),
	}
}

// DispatchFunc performs the actual initiate/schedule/transit/acknowledge
// work for one queue.Job. engine/worker supplies the implementation
// (its adapter over engine/jobs) at StartWorker time, keeping this
// package free of a dependency on engine/jobs.
type DispatchFunc func(ctx context.Context, job queue.Job) error

const workflowName = "bpm_dispatch"
const activityName = "bpm_dispatch_activity"

// Store implements queue.Queue by round-tripping each job through a
// short-lived Temporal workflow.
type Store struct {
	c   client.Client
	cfg Config
	log *logger.Logger
}

// New dials the Temporal frontend with a short retry loop, matching the
// teacher's connection-setup shape (internal/temporalx/client.go).
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	log = log.With("component", "temporalqueue")

	var c client.Client
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		opts := client.Options{HostPort: cfg.Address, Namespace: cfg.Namespace}
		if tlsCfg := loadTLSConfig(); tlsCfg != nil {
			opts.ConnectionOptions = client.ConnectionOptions{TLS: tlsCfg}
		}
		dialed, err := client.Dial(opts)
		if err == nil {
			c = dialed
			lastErr = nil
			break
		}
		lastErr = err
		log.Warn("temporal dial failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 8*time.Second {
			backoff *= 2
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("temporalqueue: dial %s: %w", cfg.Address, lastErr)
	}
	return &Store{c: c, cfg: cfg, log: log}, nil
}

func loadTLSConfig() *tls.Config {
	if strings.TrimSpace(envutil.String("TEMPORAL_TLS_ENABLE", "")) == "" {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

var _ queue.Queue = (*Store)(nil)

// Enqueue starts workflowName for job and does not wait for it to
// finish; the workflow itself invokes DispatchFunc via activityName.
func (s *Store) Enqueue(ctx context.Context, in queue.EnqueueInput) error {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("bpm-%s-%d-%d", in.Type, in.ActivityID, time.Now().UnixNano()),
		TaskQueue: s.cfg.TaskQueue,
	}
	job := queue.Job{Type: in.Type, ActivityID: in.ActivityID, ToState: in.ToState}
	_, err := s.c.ExecuteWorkflow(ctx, opts, workflowName, job)
	if err != nil {
		return fmt.Errorf("temporalqueue.Enqueue: %w", err)
	}
	return nil
}

// Claim always reports no work: Temporal pushes jobs directly into the
// registered activity rather than being polled.
func (s *Store) Claim(ctx context.Context, workerID string) (*queue.Job, error) { return nil, nil }

func (s *Store) Heartbeat(ctx context.Context, jobID int64) error { return nil }
func (s *Store) Complete(ctx context.Context, jobID int64) error { return nil }
func (s *Store) Fail(ctx context.Context, jobID int64, cause error, retryable bool) error {
	return nil
}

// Close releases the underlying Temporal client connection.
func (s *Store) Close() { s.c.Close() }

// Workflow is registered under workflowName: a single-activity pass-
// through that lets Temporal's own retry policy govern redelivery.
func Workflow(ctx workflow.Context, job queue.Job) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalRetryPolicy,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	return workflow.ExecuteActivity(ctx, activityName, job).Get(ctx, nil)
}

// StartWorker registers Workflow and an activity wrapping dispatch, and
// runs a Temporal worker until ctx is canceled.
func StartWorker(ctx context.Context, cfg Config, dispatch DispatchFunc, log *logger.Logger) error {
	c, err := client.Dial(client.Options{HostPort: cfg.Address, Namespace: cfg.Namespace})
	if err != nil {
		return fmt.Errorf("temporalqueue.StartWorker: dial: %w", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: workflowName})
	w.RegisterActivityWithOptions(func(actCtx context.Context, job queue.Job) error {
		return dispatch(actCtx, job)
	}, activityRegisterOptions())

	log.Info("starting temporal worker", "task_queue", cfg.TaskQueue)
	return w.Run(worker.InterruptCh())
}
