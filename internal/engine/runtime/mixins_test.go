package runtime

import (
	"testing"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

func id(n int64) *int64 { return &n }

func TestDefaultScheduleMixin(t *testing.T) {
	cases := []struct {
		name     string
		children []ChildStatus
		want     MixinAction
	}{
		{"empty", nil, ActionSucceed},
		{"not all spawned", []ChildStatus{{Label: "a", ID: nil}}, ActionWait},
		{"running", []ChildStatus{{Label: "a", ID: id(1), State: workflow.Running}}, ActionWait},
		{"all finished", []ChildStatus{
			{Label: "a", ID: id(1), State: workflow.Finished},
			{Label: "b", ID: id(2), State: workflow.Finished},
		}, ActionSucceed},
		{"one failed leaves the process waiting, never auto-fails", []ChildStatus{
			{Label: "a", ID: id(1), State: workflow.Finished},
			{Label: "b", ID: id(2), State: workflow.Failed},
		}, ActionWait},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DefaultScheduleMixin{}.Evaluate(c.children)
			if got != c.want {
				t.Fatalf("got %v want %v", got, c.want)
			}
		})
	}
}

func TestStrictScheduleMixinFailsFast(t *testing.T) {
	children := []ChildStatus{
		{Label: "a", ID: id(1), State: workflow.Failed},
		{Label: "b", ID: nil},
	}
	if got := (StrictScheduleMixin{}).Evaluate(children); got != ActionFail {
		t.Fatalf("got %v want ActionFail", got)
	}
}

func TestLooseScheduleMixinIgnoresFailures(t *testing.T) {
	children := []ChildStatus{
		{Label: "a", ID: id(1), State: workflow.Failed},
		{Label: "b", ID: id(2), State: workflow.Finished},
	}
	if got := (LooseScheduleMixin{}).Evaluate(children); got != ActionSucceed {
		t.Fatalf("got %v want ActionSucceed", got)
	}
}

func TestSkippedChildCountsAsFailed(t *testing.T) {
	children := []ChildStatus{
		{Label: "a", ID: id(1), State: workflow.Failed},
		{Label: "b", Skipped: true},
	}
	if !children[1].Failed() || !children[1].Finished() || !children[1].Spawned() {
		t.Fatalf("skipped child should report finished/failed/spawned")
	}
	// The default mixin never explicitly fails (spec.md section 7): a
	// skipped-due-to-failed-predecessor sibling just never succeeds, so
	// the process is left waiting rather than archived FAILED.
	if got := (DefaultScheduleMixin{}).Evaluate(children); got != ActionWait {
		t.Fatalf("got %v want ActionWait", got)
	}
	// StrictScheduleMixin is the policy documented to fail fast.
	if got := (StrictScheduleMixin{}).Evaluate(children); got != ActionFail {
		t.Fatalf("got %v want ActionFail", got)
	}
}
