// Package jobs implements the four external-entry job-queue tasks
// (spec.md section 4.6): initiate, schedule, transit, acknowledge. Each
// is a short, idempotent transaction against one activity, wrapped by a
// global exception handler that converts any runtime failure into an
// archival transition instead of crashing the worker (spec.md section 7).
package jobs

import (
	"context"
	"time"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/engine/runtime"
	"github.com/arcwelder/bpmengine/internal/engine/signal"
	"github.com/arcwelder/bpmengine/internal/observability"
	"github.com/arcwelder/bpmengine/internal/platform/config"
	"github.com/arcwelder/bpmengine/internal/store/activitystore"
)

// host is the concrete runtime.Host adapter bound to one activity for the
// lifetime of a single schedule pass. It buffers snapshot writes rather
// than persisting them immediately: the one durable snapshot row is
// always rewritten alongside the pass's terminal transition (either the
// archival transition a TaskRunner/ProcessRunner requests directly, or
// the RUNNING->BLOCKED wrap-up `schedule` applies when neither happens) so
// every persisted snapshot corresponds to an actual, committed state.
type host struct {
	act          *workflow.Activity
	store        *activitystore.Store
	queue        queue.Queue
	bus          signal.Bus
	cfg          config.Config
	metrics      *observability.Metrics
	pendingSnap  []byte
	transitioned bool
}

func newHost(act *workflow.Activity, store *activitystore.Store, q queue.Queue, bus signal.Bus, cfg config.Config, metrics *observability.Metrics) *host {
	return &host{act: act, store: store, queue: q, bus: bus, cfg: cfg, metrics: metrics}
}

var _ runtime.Host = (*host)(nil)

func (h *host) Self(ctx context.Context) (runtime.ActivityView, error) {
	return toView(h.act), nil
}

func toView(act *workflow.Activity) runtime.ActivityView {
	return runtime.ActivityView{
		ID:             act.ID,
		Name:           act.Name,
		IdentifierCode: act.IdentifierCode,
		State:          act.State,
		StatusCode:     act.StatusCode,
		DateCreated:    act.DateCreated,
		DateArchived:   act.DateArchived,
	}
}

func (h *host) LoadInputs(ctx context.Context) (args any, kwargs any, err error) {
	if h.act.InputsID == nil {
		return nil, nil, nil
	}
	return h.store.LoadInputs(ctx, *h.act.InputsID)
}

func (h *host) LoadSnapshot(ctx context.Context) ([]byte, error) {
	if h.act.SnapshotID == nil {
		return nil, nil
	}
	return h.store.LoadSnapshot(ctx, *h.act.SnapshotID)
}

func (h *host) SaveSnapshot(ctx context.Context, snapshot []byte) error {
	h.pendingSnap = snapshot
	return nil
}

func (h *host) Children(ctx context.Context) ([]runtime.ActivityView, error) {
	children, err := h.store.Children(ctx, h.act.ID)
	if err != nil {
		return nil, err
	}
	out := make([]runtime.ActivityView, 0, len(children))
	for i := range children {
		out = append(out, toView(&children[i]))
	}
	return out, nil
}

func (h *host) ChildOutcome(ctx context.Context, childID int64) (data any, exData any, statusCode *int, err error) {
	child, err := h.store.Get(ctx, childID)
	if err != nil {
		return nil, nil, nil, err
	}
	if child.OutputsID == nil {
		return nil, nil, child.StatusCode, nil
	}
	data, exData, err = h.store.LoadOutputs(ctx, *child.OutputsID)
	if err != nil {
		return nil, nil, nil, err
	}
	return data, exData, child.StatusCode, nil
}

func (h *host) SpawnChild(ctx context.Context, in runtime.ChildCreateInput) (int64, error) {
	child, err := h.store.Create(ctx, activitystore.CreateInput{
		Name:     in.Name,
		ParentID: &h.act.ID,
		Args:     in.Args,
		Kwargs:   in.Kwargs,
	})
	if err != nil {
		return 0, err
	}
	h.emit(ctx, signal.ActivityCreated, child.ID, child.IdentifierCode, &h.act.ID, workflow.Created)
	return child.ID, nil
}

func (h *host) ScheduleAfter(ctx context.Context, delay time.Duration) error {
	clamped := h.cfg.ClampSchedule(delay)
	return h.queue.Enqueue(ctx, queue.EnqueueInput{
		Type:       queue.JobTransit,
		ActivityID: h.act.ID,
		ToState:    workflow.Ready,
		RunAt:      time.Now().UTC().Add(clamped),
	})
}

func (h *host) TransitTo(ctx context.Context, toState workflow.State, archive *runtime.Archive, snapshot []byte) (bool, error) {
	outcome := activitystore.Outcome{Snapshot: snapshot}
	if archive != nil {
		outcome.StatusCode = archive.StatusCode
		outcome.Data = archive.Data
		outcome.ExData = archive.ExData
	}
	start := time.Now()
	reached, signaled, err := h.store.Transit(ctx, h.act, toState, outcome)
	if err != nil {
		return false, err
	}
	if signaled != "" {
		h.transitioned = true
		h.metrics.ObserveTransition(string(signaled), time.Since(start), h.act.Name)
		h.emit(ctx, signal.KindForState(signaled), h.act.ID, h.act.IdentifierCode, h.parentIDPtr(ctx), signaled)
	}
	return reached, nil
}

// parentIDPtr is best-effort: a missing parent lookup must never block
// emitting the activity's own lifecycle event.
func (h *host) parentIDPtr(ctx context.Context) *int64 {
	parent, err := h.store.Parent(ctx, h.act.ID)
	if err != nil || parent == nil {
		return nil
	}
	return &parent.ID
}

func (h *host) emit(ctx context.Context, kind signal.Kind, activityID int64, identifierCode string, parentID *int64, state workflow.State) {
	if kind == "" || h.bus == nil {
		return
	}
	_ = h.bus.Publish(ctx, signal.Event{
		Kind:           kind,
		ActivityID:     activityID,
		IdentifierCode: identifierCode,
		ParentID:       parentID,
		State:          state,
	})
}
