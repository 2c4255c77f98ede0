package onboarding

import (
	"time"

	"github.com/arcwelder/bpmengine/internal/engine/runtime"
)

func taskName(rc runtime.Context) string {
	args, _, err := rc.Host.LoadInputs(rc)
	if err != nil {
		return ""
	}
	if m, ok := args.(map[string]any); ok {
		if name, ok := m["name"].(string); ok {
			return name
		}
	}
	return ""
}

// RegisterEmployee is grounded on tasks.py's Register: a single-pass
// task with no re-arming, representing an HR database write that either
// succeeds immediately or doesn't need to be retried on a timer.
type RegisterEmployee struct {
	runtime.TaskBase
}

func NewRegisterEmployee() *RegisterEmployee {
	t := &RegisterEmployee{}
	t.TaskBase = runtime.NewTaskBase(t, runtime.NewNullIntervalGenerator())
	return t
}

func (t *RegisterEmployee) OnRun(rc runtime.Context) (*runtime.Archive, error) {
	return runtime.Finished(map[string]any{"hr_record_created": true, "name": taskName(rc)}, nil), nil
}

// ProvisionOffice is grounded on tasks.py's ProvideOffice: it re-arms on
// the default quadratic backoff (set_default_scheduler) and finishes once
// it has been scheduled three times, simulating a facilities request that
// takes a few polls to clear.
type ProvisionOffice struct {
	runtime.TaskBase
}

func NewProvisionOffice() *ProvisionOffice {
	t := &ProvisionOffice{}
	t.TaskBase = runtime.NewTaskBase(t, nil)
	return t
}

func (t *ProvisionOffice) OnRun(rc runtime.Context) (*runtime.Archive, error) {
	if rc.Attempt < 3 {
		return nil, nil
	}
	return runtime.Finished(map[string]any{"desk_assigned": true}, nil), nil
}

// ProvisionComputer is grounded on tasks.py's ProvideComputer: a fixed 5
// second re-poll interval (set_static_scheduler(.., 5)) rather than
// backoff, since computer imaging takes roughly the same time every run.
type ProvisionComputer struct {
	runtime.TaskBase
}

func NewProvisionComputer() *ProvisionComputer {
	t := &ProvisionComputer{}
	t.TaskBase = runtime.NewTaskBase(t, runtime.NewStaticIntervalGenerator(5*time.Second))
	return t
}

func (t *ProvisionComputer) OnRun(rc runtime.Context) (*runtime.Archive, error) {
	if rc.Attempt < 3 {
		return nil, nil
	}
	return runtime.Finished(map[string]any{"computer_shipped": true}, nil), nil
}

// HealthCheckup is grounded on tasks.py's HealthCheckUp: same default
// backoff/3-pass shape as ProvisionOffice, modeling a recurring
// post-hire wellness check dependent only on the HR record existing.
type HealthCheckup struct {
	runtime.TaskBase
}

func NewHealthCheckup() *HealthCheckup {
	t := &HealthCheckup{}
	t.TaskBase = runtime.NewTaskBase(t, nil)
	return t
}

func (t *HealthCheckup) OnRun(rc runtime.Context) (*runtime.Archive, error) {
	if rc.Attempt < 3 {
		return nil, nil
	}
	return runtime.Finished(map[string]any{"checkup_scheduled": true}, nil), nil
}
