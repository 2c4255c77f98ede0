package jobs

import (
	"context"
	"time"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/queue"
)

// acknowledge is the `acknowledge` job (spec.md section 4.6): retries
// wakeUpParent for a child whose first wake-up attempt didn't manage to
// move its parent to READY (the parent was still busy with another
// child, or momentarily lost the CAS race). It is a no-op once the
// child's acknowledgment counter is nonzero, meaning some earlier
// attempt already succeeded.
func (d *Dispatcher) acknowledge(ctx context.Context, activityID int64) error {
	act, err := d.store.Get(ctx, activityID)
	if err != nil {
		return err
	}
	if act.Acknowledgment != 0 {
		return nil
	}
	return d.wakeUpParent(ctx, activityID)
}

// wakeUpParent implements `wake_up_parent_activity` (spec.md section
// 4.6): try to move child's parent BLOCKED->READY so its Process
// re-evaluates the now-archived child. If the parent isn't ready to move
// yet (still RUNNING, or the CAS lost a race to another child's
// wake-up), it backs off and re-enqueues an acknowledge job instead of
// looping inline.
func (d *Dispatcher) wakeUpParent(ctx context.Context, childID int64) error {
	child, err := d.store.Get(ctx, childID)
	if err != nil {
		return err
	}
	parent, err := d.store.Parent(ctx, childID)
	if err != nil {
		return err
	}
	if parent == nil {
		return nil
	}
	if workflow.IsArchived(parent.State) || parent.Appointment == workflow.AppointSuspended {
		return nil
	}

	h := newHost(parent, d.store, d.queue, d.bus, d.cfg, d.metrics)
	reached, err := h.TransitTo(ctx, workflow.Ready, nil, nil)
	if err != nil {
		return err
	}
	if reached {
		return d.store.IncrementAcknowledgment(ctx, child.ID)
	}

	return d.queue.Enqueue(ctx, queue.EnqueueInput{
		Type:       queue.JobAcknowledge,
		ActivityID: child.ID,
		RunAt:      time.Now().UTC().Add(d.cfg.AcknowledgeCountdown),
	})
}
