package jobs

import (
	"context"
	"errors"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/runtime"
)

// schedule is the `schedule` job (spec.md section 4.4/4.6): transit
// READY->RUNNING, run one scheduling pass of the activity's registered
// class, and fall back to BLOCKED if the pass itself didn't already
// reach an archived or re-armed state. Any panic or error surfaced by
// the handler is caught by the global exception handler and archives
// the activity as FAILED rather than propagating (spec.md section 7).
func (d *Dispatcher) schedule(ctx context.Context, activityID int64) (err error) {
	act, err := d.store.Get(ctx, activityID)
	if err != nil {
		return err
	}
	if act.State != workflow.Ready {
		return nil
	}

	h := newHost(act, d.store, d.queue, d.bus, d.cfg, d.metrics)
	reached, err := h.TransitTo(ctx, workflow.Running, nil, nil)
	if err != nil {
		return err
	}
	if !reached {
		// An appointment override (SUSPEND/REVOKE) took over instead.
		return nil
	}

	obj, err := d.registry.New(act.Name)
	if err != nil {
		d.failActivity(ctx, act, classify("import", err), err)
		return nil
	}
	handler, ok := obj.(runtime.ActivityHandler)
	if !ok {
		d.failActivity(ctx, act, workflow.StatusInstantiationFailed, errNotActivityHandler(act.Name))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d.failActivity(ctx, act, workflow.StatusRuntimeFailure, panicToError(r))
			err = nil
		}
	}()

	rc := runtime.Context{Context: ctx, Host: h}
	if runErr := handler.Schedule(rc); runErr != nil {
		code := workflow.StatusRuntimeFailure
		if errors.Is(runErr, context.DeadlineExceeded) {
			code = workflow.StatusTimeout
		}
		d.failActivity(ctx, act, code, runErr)
		return nil
	}

	if h.transitioned {
		return nil
	}
	// The handler re-armed itself (ScheduleAfter/SaveSnapshot) without
	// requesting an archival transition: close out this pass by parking
	// the activity BLOCKED, carrying forward whatever snapshot it saved.
	_, err = h.TransitTo(ctx, workflow.Blocked, nil, h.pendingSnap)
	return err
}
