package runtime

import "testing"

func TestPredecessorsSatisfied(t *testing.T) {
	spec := ChildSpec{Label: "b", Predecessors: []string{"a"}}
	statuses := []ChildStatus{{Label: "a", ID: id(1), State: "FINISHED"}}
	byLabel := map[string]int{"a": 0}

	statuses[0].State = "FINISHED"
	if !predecessorsSatisfied(spec, statuses, byLabel) {
		t.Fatalf("expected predecessor satisfied once a has succeeded")
	}

	statuses[0].State = "RUNNING"
	if predecessorsSatisfied(spec, statuses, byLabel) {
		t.Fatalf("expected predecessor not satisfied while a is still running")
	}
}

func TestPredecessorFailedPropagatesSkip(t *testing.T) {
	spec := ChildSpec{Label: "b", Predecessors: []string{"a"}}
	statuses := []ChildStatus{{Label: "a", ID: id(1), State: "FAILED"}}
	byLabel := map[string]int{"a": 0}

	if !predecessorFailed(spec, statuses, byLabel) {
		t.Fatalf("expected b to be permanently blocked by a's failure")
	}
}

func TestResolveMapSubstitutesHandlerRef(t *testing.T) {
	args := map[string]any{
		"x":      HandlerRef{Ref: "step1", Field: "data"},
		"static": 42,
	}
	outcomes := map[string]childOutcome{"step1": {Data: "hello"}}

	out := resolveMap(args, outcomes)
	if out["x"] != "hello" {
		t.Fatalf("got %v want resolved value %q", out["x"], "hello")
	}
	if out["static"] != 42 {
		t.Fatalf("static value should be untouched, got %v", out["static"])
	}
}
