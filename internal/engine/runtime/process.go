package runtime

import (
	"golang.org/x/sync/errgroup"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// Mode picks the implicit predecessor chaining a Process applies to a
// ChildSpec that names none explicitly (spec.md section 4.5).
type Mode int

const (
	// ModeSerial chains each undeclared-predecessor spec to the one
	// before it in Start() call order, so children run one at a time.
	ModeSerial Mode = iota
	// ModeParallel leaves specs with no explicit Predecessors free to
	// spawn as soon as the process starts.
	ModeParallel
)

// ProcessRunner is what a composite activity class implements: OnStart
// declares the full static spawn graph via repeated calls to Start(),
// exactly once per process instance (spec.md section 4.5). It must not
// block or loop waiting for children; all dependency resolution happens
// across later Schedule passes, driven by the engine.
type ProcessRunner interface {
	OnStart(rc Context) error
}

// StartOption configures one ChildSpec built by ProcessBase.Start.
type StartOption func(*ChildSpec)

// WithArgs attaches positional-style arguments to a child spec. A value
// may be a HandlerRef to wire another child's output into this one.
func WithArgs(args map[string]any) StartOption {
	return func(s *ChildSpec) { s.Args = args }
}

// WithKwargs attaches keyword-style arguments to a child spec.
func WithKwargs(kwargs map[string]any) StartOption {
	return func(s *ChildSpec) { s.Kwargs = kwargs }
}

// WithPredecessors overrides a child's implicit (mode-derived)
// predecessor list with an explicit one (spec.md section 4.5's
// "explicit predecessor" edges).
func WithPredecessors(labels ...string) StartOption {
	return func(s *ChildSpec) { s.Predecessors = labels }
}

// ProcessSnapshot is the durable record of a process's spawn graph and
// progress. Args/Kwargs may contain HandlerRef values, an `any`-typed
// payload, so this is encoded with the JSON codec rather than gob.
type ProcessSnapshot struct {
	Specs    []ChildSpec
	ChildIDs map[string]int64
	Started  bool
}

// ProcessBase implements ActivityHandler for composite activities. A
// concrete activity class embeds ProcessBase and supplies a
// ProcessRunner, typically itself:
//
//	type Onboarding struct {
//	    runtime.ProcessBase
//	}
//	func (o *Onboarding) OnStart(rc runtime.Context) error {
//	    o.Start("create_account", "CreateAccount")
//	    o.Start("send_welcome", "SendWelcomeEmail", runtime.WithPredecessors("create_account"))
//	    return nil
//	}
//	func NewOnboarding() *Onboarding {
//	    p := &Onboarding{}
//	    p.ProcessBase = runtime.NewProcessBase(p, runtime.ModeSerial)
//	    return p
//	}
type ProcessBase struct {
	runner  ProcessRunner
	mode    Mode
	mixin   ScheduleMixin
	pending []ChildSpec
}

// NewProcessBase builds a ProcessBase bound to runner with the given
// default chaining mode.
func NewProcessBase(runner ProcessRunner, mode Mode) ProcessBase {
	return ProcessBase{runner: runner, mode: mode, mixin: DefaultScheduleMixin{}}
}

// SetSerial switches the default chaining mode to ModeSerial.
func (p *ProcessBase) SetSerial() { p.mode = ModeSerial }

// SetParallel switches the default chaining mode to ModeParallel.
func (p *ProcessBase) SetParallel() { p.mode = ModeParallel }

// UseStrictCompletion switches the completion policy to
// StrictScheduleMixin (fail fast on the first child failure).
func (p *ProcessBase) UseStrictCompletion() { p.mixin = StrictScheduleMixin{} }

// UseLooseCompletion switches the completion policy to
// LooseScheduleMixin (succeed if any child succeeds).
func (p *ProcessBase) UseLooseCompletion() { p.mixin = LooseScheduleMixin{} }

// Start declares one child of the spawn graph. It must only be called
// from within OnStart; calling it elsewhere has no effect, since
// ProcessBase.Schedule only reads p.pending immediately after invoking
// OnStart.
func (p *ProcessBase) Start(label, name string, opts ...StartOption) {
	spec := ChildSpec{Label: label, Name: name}
	for _, opt := range opts {
		opt(&spec)
	}
	if len(spec.Predecessors) == 0 && p.mode == ModeSerial && len(p.pending) > 0 {
		spec.Predecessors = []string{p.pending[len(p.pending)-1].Label}
	}
	p.pending = append(p.pending, spec)
}

// SerialStep is one entry passed to RunInSerial.
type SerialStep struct {
	Label string
	Name  string
	Args  map[string]any
}

// RunInSerial is a convenience for declaring a chain of children that
// each depend on the one before, regardless of the process's default
// mode.
func (p *ProcessBase) RunInSerial(steps []SerialStep) {
	var prev string
	for _, s := range steps {
		opts := []StartOption{WithArgs(s.Args)}
		if prev != "" {
			opts = append(opts, WithPredecessors(prev))
		}
		p.Start(s.Label, s.Name, opts...)
		prev = s.Label
	}
}

// Schedule is the ActivityHandler implementation. On the first pass it
// runs OnStart once to populate the spawn graph; every pass after that
// it spawns any child whose predecessors are now satisfied, resolves
// HandlerRef values against finished predecessors' outputs, and
// evaluates the configured ScheduleMixin to decide whether the process
// itself is done (spec.md section 4.5).
func (p *ProcessBase) Schedule(rc Context) error {
	var snap ProcessSnapshot
	raw, err := rc.Host.LoadSnapshot(rc)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		if err := workflow.DecodeJSONBlobInto(raw, &snap); err != nil {
			return err
		}
	}
	if snap.ChildIDs == nil {
		snap.ChildIDs = make(map[string]int64)
	}

	if !snap.Started {
		p.pending = nil
		if err := p.runner.OnStart(rc); err != nil {
			return err
		}
		snap.Specs = p.pending
		snap.Started = true
	}

	children, err := rc.Host.Children(rc)
	if err != nil {
		return err
	}
	childByID := make(map[int64]ActivityView, len(children))
	for _, c := range children {
		childByID[c.ID] = c
	}

	statuses := make([]ChildStatus, 0, len(snap.Specs))
	byLabel := make(map[string]int, len(snap.Specs))
	outcomes := make(map[string]childOutcome)
	changed := !snap.Started // Started flipped this pass; persist regardless.

	// Specs this pass determines are ready to spawn are collected here
	// instead of being spawned inline: a ModeParallel process can have
	// several independent roots ready on the very first pass, and
	// nothing about one's SpawnChild call depends on another's (args/
	// kwargs are resolved up front from already-finished predecessors
	// only), so they fan out concurrently below instead of paying
	// round-trip latency serially, one Host.SpawnChild at a time.
	type pendingSpawn struct {
		index  int
		label  string
		name   string
		args   map[string]any
		kwargs map[string]any
	}
	var toSpawn []pendingSpawn

	for i, spec := range snap.Specs {
		byLabel[spec.Label] = i
		st := ChildStatus{Label: spec.Label}

		if id, ok := snap.ChildIDs[spec.Label]; ok {
			id := id
			st.ID = &id
			if av, ok := childByID[id]; ok {
				st.State = av.State
				if st.Finished() {
					data, exData, _, err := rc.Host.ChildOutcome(rc, id)
					if err != nil {
						return err
					}
					outcomes[spec.Label] = childOutcome{Data: data, ExData: exData}
				}
			}
			statuses = append(statuses, st)
			continue
		}

		if predecessorFailed(spec, statuses, byLabel) {
			st.Skipped = true
			statuses = append(statuses, st)
			continue
		}

		if !predecessorsSatisfied(spec, statuses, byLabel) {
			statuses = append(statuses, st)
			continue
		}

		toSpawn = append(toSpawn, pendingSpawn{
			index:  len(statuses),
			label:  spec.Label,
			name:   spec.Name,
			args:   resolveMap(spec.Args, outcomes),
			kwargs: resolveMap(spec.Kwargs, outcomes),
		})
		statuses = append(statuses, st)
	}

	if len(toSpawn) > 0 {
		childIDs := make([]int64, len(toSpawn))
		group, gctx := errgroup.WithContext(rc)
		for i, ps := range toSpawn {
			i, ps := i, ps
			group.Go(func() error {
				childID, err := rc.Host.SpawnChild(gctx, ChildCreateInput{Name: ps.name, Args: ps.args, Kwargs: ps.kwargs})
				if err != nil {
					return err
				}
				childIDs[i] = childID
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		for i, ps := range toSpawn {
			childID := childIDs[i]
			snap.ChildIDs[ps.label] = childID
			id := childID
			statuses[ps.index].ID = &id
		}
		changed = true
	}

	mixin := p.mixin
	if mixin == nil {
		mixin = DefaultScheduleMixin{}
	}
	switch mixin.Evaluate(statuses) {
	case ActionSucceed:
		_, err := rc.Host.TransitTo(rc, workflow.Finished, Finished(nil, nil), nil)
		return err
	case ActionFail:
		_, err := rc.Host.TransitTo(rc, workflow.Failed, FailedArchive(workflow.StatusRuntimeFailure, nil), nil)
		return err
	}

	if changed {
		out, err := workflow.EncodeJSONBlob(snap)
		if err != nil {
			return err
		}
		if err := rc.Host.SaveSnapshot(rc, out); err != nil {
			return err
		}
	}
	return nil
}

// predecessorsSatisfied reports whether every predecessor of spec has
// succeeded. Predecessors may only reference labels declared earlier in
// Start() call order, so their ChildStatus is already final in statuses
// by the time spec is reached.
func predecessorsSatisfied(spec ChildSpec, statuses []ChildStatus, byLabel map[string]int) bool {
	for _, pred := range spec.Predecessors {
		idx, ok := byLabel[pred]
		if !ok || !statuses[idx].Succeeded() {
			return false
		}
	}
	return true
}

// predecessorFailed reports whether spec can never run because one of
// its predecessors failed or was itself skipped.
func predecessorFailed(spec ChildSpec, statuses []ChildStatus, byLabel map[string]int) bool {
	for _, pred := range spec.Predecessors {
		idx, ok := byLabel[pred]
		if ok && statuses[idx].Failed() {
			return true
		}
	}
	return false
}
