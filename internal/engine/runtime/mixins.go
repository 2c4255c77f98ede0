package runtime

// MixinAction is what a ScheduleMixin tells ProcessBase.Schedule to do
// once it has looked at the current child-status summary.
type MixinAction int

const (
	// ActionWait means: some children are still running or not yet
	// spawned; do nothing this pass beyond what predecessor-resolution
	// already did.
	ActionWait MixinAction = iota
	// ActionSucceed means: the process itself should transit to FINISHED.
	ActionSucceed
	// ActionFail means: the process itself should transit to FAILED.
	ActionFail
)

// ScheduleMixin decides process-level completion from a snapshot of
// child statuses. It is pure and DB-free by construction: ProcessBase
// computes the []ChildStatus slice from Host calls and hands it in, so
// mixin behavior is unit-testable without a database (spec.md section
// 4.5, the three documented completion policies).
type ScheduleMixin interface {
	Evaluate(children []ChildStatus) MixinAction
}

// allSpawned reports whether every declared child has actually been
// created yet. A mixin never signals completion while spawning is still
// in progress, regardless of policy.
func allSpawned(children []ChildStatus) bool {
	for _, c := range children {
		if !c.Spawned() {
			return false
		}
	}
	return true
}

// DefaultScheduleMixin is the process's completion policy absent an
// explicit UseStrictCompletion/UseLooseCompletion call: wait for every
// child to reach FINISHED, then succeed. It never explicitly fails the
// process — a child that archives FAILED/REVOKED (or is skipped because
// a predecessor did) simply never satisfies the "every child finished"
// condition, so the process is left waiting/blocked forever (spec.md
// section 4.5 rules 1-4; section 7: "A child failing does not auto-fail
// the parent (in the base mixin)").
type DefaultScheduleMixin struct{}

func (DefaultScheduleMixin) Evaluate(children []ChildStatus) MixinAction {
	if !allSpawned(children) {
		return ActionWait
	}
	for _, c := range children {
		if !c.Succeeded() {
			return ActionWait
		}
	}
	return ActionSucceed
}

// StrictScheduleMixin fails the process the moment any spawned child
// fails, without waiting for its siblings to finish. Chosen for
// processes where a failed step makes the remaining work meaningless
// (spec.md section 4.5's "fail fast" mode).
type StrictScheduleMixin struct{}

func (StrictScheduleMixin) Evaluate(children []ChildStatus) MixinAction {
	for _, c := range children {
		if c.Spawned() && c.Failed() {
			return ActionFail
		}
	}
	if !allSpawned(children) {
		return ActionWait
	}
	for _, c := range children {
		if !c.Finished() {
			return ActionWait
		}
	}
	return ActionSucceed
}

// LooseScheduleMixin is DefaultScheduleMixin with individual child
// failures ignored entirely: the process succeeds once every child has
// reached some archived state, whether or not that state was FINISHED
// (spec.md section 4.5's "best effort" mode).
type LooseScheduleMixin struct{}

func (LooseScheduleMixin) Evaluate(children []ChildStatus) MixinAction {
	if !allSpawned(children) {
		return ActionWait
	}
	for _, c := range children {
		if !c.Finished() {
			return ActionWait
		}
	}
	return ActionSucceed
}
