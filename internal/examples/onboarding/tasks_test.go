package onboarding

import (
	"context"
	"testing"

	"github.com/arcwelder/bpmengine/internal/engine/runtime"
)

// fakeHost is the narrowest runtime.Host a Task test needs: LoadInputs
// returns a fixed (args, kwargs) pair, everything else is unused by
// OnRun-only tests and left as zero-value no-ops.
type fakeHost struct {
	runtime.Host
	args any
}

func (f *fakeHost) LoadInputs(ctx context.Context) (any, any, error) {
	return f.args, nil, nil
}

func TestRegisterEmployeeFinishesImmediately(t *testing.T) {
	task := NewRegisterEmployee()
	rc := runtime.Context{Context: context.Background(), Host: &fakeHost{args: map[string]any{"name": "Ada"}}, Attempt: 1}

	archive, err := task.OnRun(rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archive == nil || archive.ToState != "FINISHED" {
		t.Fatalf("expected immediate FINISHED archive, got %+v", archive)
	}
}

func TestProvisionOfficeWaitsForThreeAttempts(t *testing.T) {
	task := NewProvisionOffice()
	rc := runtime.Context{Context: context.Background(), Host: &fakeHost{}, Attempt: 1}

	if archive, err := task.OnRun(rc); err != nil || archive != nil {
		t.Fatalf("expected no archive on attempt 1, got archive=%+v err=%v", archive, err)
	}
	rc.Attempt = 2
	if archive, err := task.OnRun(rc); err != nil || archive != nil {
		t.Fatalf("expected no archive on attempt 2, got archive=%+v err=%v", archive, err)
	}
	rc.Attempt = 3
	archive, err := task.OnRun(rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archive == nil {
		t.Fatal("expected FINISHED archive on attempt 3")
	}
}
