package jobs

import (
	"context"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/runtime"
)

// initiate is the `initiate` job (spec.md section 4.6): classify the
// activity, inherit the parent's appointment, and transit CREATED->READY.
// It is a no-op if the activity has already left CREATED — another
// worker won the race, or this delivery is a redundant retry.
func (d *Dispatcher) initiate(ctx context.Context, activityID int64) error {
	act, err := d.store.Get(ctx, activityID)
	if err != nil {
		return err
	}
	if act.State != workflow.Created {
		return nil
	}

	obj, err := d.registry.New(act.Name)
	if err != nil {
		d.failActivity(ctx, act, classify("import", err), err)
		return nil
	}
	if _, ok := obj.(runtime.ActivityHandler); !ok {
		d.failActivity(ctx, act, workflow.StatusInstantiationFailed, errNotActivityHandler(act.Name))
		return nil
	}

	parent, err := d.store.Parent(ctx, act.ID)
	if err != nil {
		return err
	}
	if parent != nil && parent.Appointment != workflow.NoAppointment {
		if _, err := d.store.Appoint(ctx, act, parent.Appointment); err != nil {
			return err
		}
	}

	h := newHost(act, d.store, d.queue, d.bus, d.cfg, d.metrics)
	_, err = h.TransitTo(ctx, workflow.Ready, nil, nil)
	return err
}
