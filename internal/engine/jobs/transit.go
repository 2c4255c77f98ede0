package jobs

import (
	"context"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// transit is the `transit` job (spec.md section 4.6): an unconditional
// _transit call used for appointment-driven and interval-generator
// countdown wakeups (Host.ScheduleAfter), where the caller has already
// decided the target state and the current state is whatever it happens
// to be by the time this job runs.
func (d *Dispatcher) transit(ctx context.Context, activityID int64, toState workflow.State) error {
	act, err := d.store.Get(ctx, activityID)
	if err != nil {
		return err
	}
	h := newHost(act, d.store, d.queue, d.bus, d.cfg, d.metrics)
	_, err = h.TransitTo(ctx, toState, nil, nil)
	return err
}
