package jobs

import (
	"errors"
	"testing"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

func TestClassify(t *testing.T) {
	cases := map[string]workflow.StatusCode{
		"import":      workflow.StatusImportFailure,
		"instantiate": workflow.StatusInstantiationFailed,
		"runtime":     workflow.StatusRuntimeFailure,
		"other":       workflow.StatusUncategorized,
	}
	for stage, want := range cases {
		if got := classify(stage, errors.New("boom")); got != want {
			t.Errorf("classify(%q) = %v, want %v", stage, got, want)
		}
	}
}

func TestPanicToError(t *testing.T) {
	if err := panicToError(errors.New("boom")); err.Error() != "boom" {
		t.Fatalf("expected panic'd error to pass through unwrapped, got %q", err)
	}
	if err := panicToError("boom"); err.Error() != "panic: boom" {
		t.Fatalf("expected non-error panic value wrapped, got %q", err)
	}
}

func TestErrNotActivityHandler(t *testing.T) {
	err := errNotActivityHandler("SendEmail")
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected a descriptive message")
	}
}
