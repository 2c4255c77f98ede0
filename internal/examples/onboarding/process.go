// Package onboarding is a worked example exercising both activity kinds
// end to end: a Process spawning four Tasks with a mix of implicit and
// explicit predecessor edges. It is grounded on the original source's
// demo/example package (processes.py's ExampleProcess, tasks.py's
// Register/ProvideOffice/ProvideComputer/HealthCheckUp), renamed to an
// employee-onboarding domain and rewritten against engine/runtime's
// ChildSpec-based static spawn graph in place of the original's
// imperative self.start(...) calls made directly against live children.
package onboarding

import (
	"github.com/arcwelder/bpmengine/internal/engine/runtime"
)

// OnboardEmployee is the composite activity: it spawns the four steps of
// bringing on a new employee. RegisterEmployee and ProvisionOffice have
// no predecessors and run in parallel; ProvisionComputer waits on both
// (it needs an HR record and a desk to ship a computer to); HealthCheckup
// only needs the HR record.
type OnboardEmployee struct {
	runtime.ProcessBase
}

// NewOnboardEmployee constructs a fresh instance, the Constructor
// registered under the "OnboardEmployee" name (see Register).
func NewOnboardEmployee() *OnboardEmployee {
	p := &OnboardEmployee{}
	p.ProcessBase = runtime.NewProcessBase(p, runtime.ModeParallel)
	return p
}

// OnStart declares the static spawn graph once, on the process's first
// schedule pass (spec.md section 4.5). It must not block or inspect
// child state directly; every dependency is expressed as a Predecessors
// edge and resolved by ProcessBase.Schedule on later passes.
func (o *OnboardEmployee) OnStart(rc runtime.Context) error {
	args, _, err := rc.Host.LoadInputs(rc)
	if err != nil {
		return err
	}
	var name string
	if m, ok := args.(map[string]any); ok {
		name, _ = m["name"].(string)
	}

	o.Start("hrdb", "RegisterEmployee", runtime.WithArgs(map[string]any{"name": name}))
	o.Start("office", "ProvisionOffice", runtime.WithArgs(map[string]any{"name": name}))
	o.Start("computer", "ProvisionComputer",
		runtime.WithArgs(map[string]any{"name": name}),
		runtime.WithPredecessors("hrdb", "office"),
	)
	o.Start("healthcheck", "HealthCheckup",
		runtime.WithArgs(map[string]any{"name": name}),
		runtime.WithPredecessors("hrdb"),
	)
	return nil
}
