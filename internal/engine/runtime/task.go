package runtime

import (
	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// TaskRunner is what a leaf activity class implements (spec.md section
// 4.4's Task: "run(), returning either a result or nothing to indicate
// more work is needed"). OnRun is called at most once per schedule pass
// and must be side-effect-idempotent across retries, since the engine
// may call it again after a crash between OnRun returning and its
// result being durably recorded.
type TaskRunner interface {
	OnRun(rc Context) (*Archive, error)
}

// TaskSnapshot is the small bit of state a Task needs to survive across
// schedule passes: how many times OnRun has been tried. It is a fixed,
// statically-typed struct (no `any` fields), so it is safe to persist
// with the gob-based codec rather than JSON.
type TaskSnapshot struct {
	Attempt int
}

// TaskBase implements ActivityHandler for leaf activities. A concrete
// activity class embeds TaskBase and supplies a TaskRunner, typically
// itself:
//
//	type SendEmail struct {
//	    runtime.TaskBase
//	}
//	func (s *SendEmail) OnRun(rc runtime.Context) (*runtime.Archive, error) { ... }
//	func NewSendEmail() *SendEmail {
//	    t := &SendEmail{}
//	    t.TaskBase = runtime.NewTaskBase(t, runtime.NewNullIntervalGenerator())
//	    return t
//	}
type TaskBase struct {
	runner    TaskRunner
	scheduler IntervalGenerator
}

// NewTaskBase builds a TaskBase bound to runner, re-arming on failure
// (OnRun returning a nil Archive and nil error) per scheduler. A nil
// scheduler defaults to NewQuadraticIntervalGenerator's standard backoff.
func NewTaskBase(runner TaskRunner, scheduler IntervalGenerator) TaskBase {
	if scheduler == nil {
		scheduler = NewQuadraticIntervalGenerator(defaultBaseInterval, defaultMaxInterval)
	}
	return TaskBase{runner: runner, scheduler: scheduler}
}

// SetScheduler overrides the interval generator after construction, for
// activity classes that decide their backoff policy from constructor
// arguments rather than a literal at registration time.
func (t *TaskBase) SetScheduler(scheduler IntervalGenerator) {
	t.scheduler = scheduler
}

// Schedule is the ActivityHandler implementation: it loads the attempt
// counter, calls the runner once, and either transits to an archived
// state or re-arms itself via Host.ScheduleAfter (spec.md section 4.4).
func (t TaskBase) Schedule(rc Context) error {
	var snap TaskSnapshot
	if raw, err := rc.Host.LoadSnapshot(rc); err == nil && len(raw) > 0 {
		_ = workflow.DecodeBlob(raw, &snap)
	}
	snap.Attempt++
	rc.Attempt = snap.Attempt

	archive, err := t.runner.OnRun(rc)
	if err != nil {
		return err
	}

	if archive != nil {
		_, err := rc.Host.TransitTo(rc, archive.ToState, archive, nil)
		return err
	}

	raw, err := workflow.EncodeBlob(snap)
	if err != nil {
		return err
	}
	if err := rc.Host.SaveSnapshot(rc, raw); err != nil {
		return err
	}

	delay, ok := t.scheduler(snap.Attempt)
	if !ok {
		// The scheduler declined to re-arm: the task stays BLOCKED until
		// something else schedules it again (an acknowledge from a
		// child, or an external signal).
		return nil
	}
	return rc.Host.ScheduleAfter(rc, delay)
}
