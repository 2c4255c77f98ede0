package runtime

import "github.com/arcwelder/bpmengine/internal/domain/workflow"

// HandlerRef is a placeholder value a Process drops into a child's args
// or kwargs in place of a concrete value, to be resolved from another
// child's output once that child finishes (spec.md section 4.5's data-
// flow edges, e.g. `Start(Task, args=(HandlerRef("step1", "data"),))`).
// It is itself a legal JSON value (it survives EncodeJSONBlob/
// DecodeJSONBlob round trips) so an unresolved HandlerRef surfacing in a
// stored snapshot is visible for debugging rather than silently lost.
type HandlerRef struct {
	Ref   string `json:"$ref"`
	Field string `json:"field"`
}

// IsHandlerRef reports whether v is (or decoded from JSON as) a
// HandlerRef, handling both the concrete Go value and the
// map[string]any shape a JSON round trip produces.
func IsHandlerRef(v any) (HandlerRef, bool) {
	switch t := v.(type) {
	case HandlerRef:
		return t, true
	case map[string]any:
		ref, ok1 := t["$ref"].(string)
		field, ok2 := t["field"].(string)
		if ok1 && ok2 {
			return HandlerRef{Ref: ref, Field: field}, true
		}
	}
	return HandlerRef{}, false
}

// ChildStatus summarizes one child activity for mixin evaluation
// (spec.md section 4.5's ScheduleMixin). It is a plain value, computed
// by ProcessBase.Schedule from Host.Children + Host.ChildOutcome, so
// that mixin logic stays pure and DB-free.
type ChildStatus struct {
	Label string
	ID    *int64 // nil until the child has been spawned
	State workflow.State
	// Skipped is true for a ChildSpec that will never be spawned because
	// one of its predecessors failed. A skipped child counts as spawned
	// and failed for mixin purposes, so a process with a failed
	// predecessor can still reach a terminal state instead of waiting
	// forever for a child that will never exist.
	Skipped    bool
	StatusCode *int
}

// Spawned reports whether this child has been created (or permanently
// skipped) and therefore needs no further spawning attempts.
func (c ChildStatus) Spawned() bool { return c.ID != nil || c.Skipped }

// Finished reports whether this child reached an archived state (or was
// skipped, which is terminal by construction).
func (c ChildStatus) Finished() bool {
	return c.Skipped || (c.ID != nil && workflow.IsArchived(c.State))
}

// Succeeded reports whether this child finished in FINISHED state.
func (c ChildStatus) Succeeded() bool {
	return !c.Skipped && c.Finished() && c.State == workflow.Finished
}

// Failed reports whether this child finished in FAILED/REVOKED state,
// or was skipped outright.
func (c ChildStatus) Failed() bool {
	if c.Skipped {
		return true
	}
	return c.Finished() && (c.State == workflow.Failed || c.State == workflow.Revoked)
}

// ChildSpec is one entry of a Process's static spawn graph, built by
// Start() calls inside OnStart (spec.md section 4.5). Label is the
// process-local name other ChildSpecs reference via HandlerRef and
// Predecessors; it need not match Name, the activity class to
// construct.
type ChildSpec struct {
	Label        string
	Name         string
	Args         map[string]any
	Kwargs       map[string]any
	Predecessors []string
}

// ActivityHandler is implemented by both TaskBase and ProcessBase: the
// one method the engine's schedule job calls on every pass.
type ActivityHandler interface {
	// Schedule runs one scheduling pass. archive is non-nil when the
	// activity should transit to an archived state this pass; when nil,
	// the implementation has already told the Host how to re-arm itself
	// (a new snapshot and/or a ScheduleAfter call).
	Schedule(rc Context) error
}
