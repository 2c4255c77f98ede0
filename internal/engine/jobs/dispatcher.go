package jobs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/engine/registry"
	"github.com/arcwelder/bpmengine/internal/engine/runtime"
	"github.com/arcwelder/bpmengine/internal/engine/signal"
	"github.com/arcwelder/bpmengine/internal/observability"
	"github.com/arcwelder/bpmengine/internal/platform/config"
	"github.com/arcwelder/bpmengine/internal/platform/ctxutil"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
	"github.com/arcwelder/bpmengine/internal/store/activitystore"
)

// Dispatcher owns the four job-queue entry points and the bus wiring
// that turns lifecycle events into further enqueues (spec.md section
// 4.6's signal->job table). It is the one thing engine/worker (or a
// temporalqueue activity) needs to run a claimed queue.Job to completion.
type Dispatcher struct {
	store    *activitystore.Store
	registry *registry.Registry
	queue    queue.Queue
	bus      signal.Bus
	cfg      config.Config
	metrics  *observability.Metrics
	log      *logger.Logger
}

// New builds a Dispatcher and wires its bus subscription. Callers must
// supply a bus that every SpawnChild/TransitTo call also publishes to
// (normally the same value passed to New), otherwise created/ready
// activities will never be picked up.
func New(store *activitystore.Store, reg *registry.Registry, q queue.Queue, bus signal.Bus, cfg config.Config, metrics *observability.Metrics, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{store: store, registry: reg, queue: q, bus: bus, cfg: cfg, metrics: metrics, log: log.With("component", "engine.jobs.Dispatcher")}
	bus.Subscribe(d.onEvent)
	return d
}

// Dispatch runs one claimed queue.Job to completion. It is the
// queue.Queue-agnostic function both engine/worker's polling loop and
// temporalqueue's activity wrapper call.
func (d *Dispatcher) Dispatch(ctx context.Context, job queue.Job) error {
	ctx = withJobTraceData(ctx, job)
	start := time.Now()
	err := d.dispatch(ctx, job)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.metrics.ObserveDispatch(string(job.Type), outcome, time.Since(start))
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobInitiate:
		return d.initiate(ctx, job.ActivityID)
	case queue.JobSchedule:
		return d.schedule(ctx, job.ActivityID)
	case queue.JobTransit:
		return d.transit(ctx, job.ActivityID, job.ToState)
	case queue.JobAcknowledge:
		return d.acknowledge(ctx, job.ActivityID)
	default:
		return fmt.Errorf("jobs.Dispatch: unknown job type %q", job.Type)
	}
}

// onEvent implements spec.md section 4.6's signal->job wiring table. It
// runs synchronously, inline with whatever Transit/SpawnChild call
// produced the event (signal.Bus's documented contract), so every branch
// here must be fast and must not itself block on further scheduling.
func (d *Dispatcher) onEvent(ctx context.Context, evt signal.Event) {
	fields := append([]any{"activity_id", evt.ActivityID}, traceLogFields(ctx)...)
	switch evt.Kind {
	case signal.ActivityCreated:
		if err := d.queue.Enqueue(ctx, queue.EnqueueInput{Type: queue.JobInitiate, ActivityID: evt.ActivityID}); err != nil {
			d.log.Warn("failed to enqueue initiate", append(fields, "error", err)...)
		}
	case signal.ActivityReady:
		if err := d.queue.Enqueue(ctx, queue.EnqueueInput{Type: queue.JobSchedule, ActivityID: evt.ActivityID}); err != nil {
			d.log.Warn("failed to enqueue schedule", append(fields, "error", err)...)
		}
	case signal.ActivityFinished, signal.ActivityFailed, signal.ActivityRevoked:
		// spec.md names only activity_finished here, but a FAILED/REVOKED
		// child must still wake its parent or the parent (and its
		// ScheduleMixin, which decides success/failure from the exact
		// same archived-child signal) would block forever; see DESIGN.md's
		// "why FAILED/REVOKED also wake the parent" Open Questions entry.
		if err := d.wakeUpParent(ctx, evt.ActivityID); err != nil {
			d.log.Warn("wake_up_parent_activity failed", append(fields, "error", err)...)
		}
	}
}

// withJobTraceData stashes the job's correlation identifiers onto ctx via
// ctxutil, the same trace_id/request_id carrier the teacher's job runtime
// used to tag a job execution's logs; here the request id is the
// activity/job pair rather than an inbound HTTP request, and the trace id
// comes from whatever OTel span Dispatch was called under (worker.go's
// poll loop or temporalqueue's activity).
func withJobTraceData(ctx context.Context, job queue.Job) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	traceID := ""
	if sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: fmt.Sprintf("%s-%d", job.Type, job.ActivityID),
	})
}

// traceLogFields renders ctxutil's trace data as zap-style key/value pairs
// for the Dispatcher's own warn/error logging, so a job's failures can be
// correlated back to the span and job that produced them.
func traceLogFields(ctx context.Context) []any {
	td := ctxutil.GetTraceData(ctx)
	if td == nil {
		return nil
	}
	return []any{"trace_id", td.TraceID, "request_id", td.RequestID}
}

// classify maps an unexpected Go error from registry/runtime code to the
// status code taxonomy of spec.md section 7.
func classify(stage string, err error) workflow.StatusCode {
	switch stage {
	case "import":
		return workflow.StatusImportFailure
	case "instantiate":
		return workflow.StatusInstantiationFailed
	case "runtime":
		return workflow.StatusRuntimeFailure
	default:
		return workflow.StatusUncategorized
	}
}

// failActivity archives act as FAILED with the given status code and
// exception trace, after a classified failure in the global exception
// handler (spec.md section 7). It never returns an error: failing to
// fail is logged and swallowed so the job-queue's own retry policy
// (spec.md section 7's "internal invariant violations" bucket) takes
// over instead of the worker crashing.
func (d *Dispatcher) failActivity(ctx context.Context, act *workflow.Activity, code workflow.StatusCode, cause error) {
	h := newHost(act, d.store, d.queue, d.bus, d.cfg, d.metrics)
	archive := runtime.FailedArchive(code, map[string]any{"error": errString(cause)})
	if _, err := h.TransitTo(ctx, workflow.Failed, archive, nil); err != nil {
		fields := append([]any{"activity_id", act.ID, "status_code", code}, traceLogFields(ctx)...)
		d.log.Error("failed to archive activity as FAILED", append(fields, "error", err)...)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errNotActivityHandler(name string) error {
	return fmt.Errorf("registry: class %q does not implement runtime.ActivityHandler", name)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
