package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// fakeHost is a minimal in-memory Host used to drive ProcessBase.Schedule
// across multiple passes without a database, exercising spec.md section
// 8's end-to-end scenarios (serial chain, diamond dependency) at the
// level ProcessBase actually operates: spec declaration, spawn, and
// mixin evaluation. ProcessBase.Schedule fans independent spawns out
// concurrently (ModeParallel roots), so SpawnChild must be safe for
// concurrent callers the same as a real *gorm.DB-backed Host is.
type fakeHost struct {
	mu       sync.Mutex
	nextID   int64
	children map[int64]*ActivityView
	outputs  map[int64]childOutcome
	snapshot []byte
	archived *Archive
	toState  workflow.State
}

func newFakeHost() *fakeHost {
	return &fakeHost{children: map[int64]*ActivityView{}, outputs: map[int64]childOutcome{}}
}

func (h *fakeHost) Self(ctx context.Context) (ActivityView, error) { return ActivityView{}, nil }
func (h *fakeHost) LoadInputs(ctx context.Context) (any, any, error) { return nil, nil, nil }
func (h *fakeHost) LoadSnapshot(ctx context.Context) ([]byte, error) { return h.snapshot, nil }
func (h *fakeHost) SaveSnapshot(ctx context.Context, snapshot []byte) error {
	h.snapshot = snapshot
	return nil
}

func (h *fakeHost) Children(ctx context.Context) ([]ActivityView, error) {
	out := make([]ActivityView, 0, len(h.children))
	for _, c := range h.children {
		out = append(out, *c)
	}
	return out, nil
}

func (h *fakeHost) ChildOutcome(ctx context.Context, childID int64) (any, any, *int, error) {
	out := h.outputs[childID]
	return out.Data, out.ExData, nil, nil
}

func (h *fakeHost) SpawnChild(ctx context.Context, in ChildCreateInput) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.children[id] = &ActivityView{ID: id, Name: in.Name, State: workflow.Created}
	return id, nil
}

func (h *fakeHost) ScheduleAfter(ctx context.Context, delay time.Duration) error { return nil }

func (h *fakeHost) TransitTo(ctx context.Context, toState workflow.State, archive *Archive, snapshot []byte) (bool, error) {
	h.archived = archive
	h.toState = toState
	if len(snapshot) > 0 {
		h.snapshot = snapshot
	}
	return true, nil
}

// finish marks childID FINISHED with the given data, as if its own
// schedule pass archived it.
func (h *fakeHost) finish(childID int64, data any) {
	h.children[childID].State = workflow.Finished
	h.outputs[childID] = childOutcome{Data: data}
}

func (h *fakeHost) fail(childID int64) {
	h.children[childID].State = workflow.Failed
}

type serialChainProcess struct {
	ProcessBase
}

func (p *serialChainProcess) OnStart(rc Context) error {
	p.Start("a", "TaskA")
	p.Start("b", "TaskB", WithPredecessors("a"))
	return nil
}

func TestProcessBaseSerialChain(t *testing.T) {
	proc := &serialChainProcess{}
	proc.ProcessBase = NewProcessBase(proc, ModeSerial)
	host := newFakeHost()
	rc := Context{Context: context.Background(), Host: host}

	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	if len(host.children) != 1 {
		t.Fatalf("expected only 'a' spawned before it finishes, got %d children", len(host.children))
	}
	if host.toState != "" {
		t.Fatalf("process should not archive while a child is still pending")
	}

	host.finish(1, "a-out")
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	if len(host.children) != 2 {
		t.Fatalf("expected 'b' spawned once 'a' finished, got %d children", len(host.children))
	}
	if host.toState != "" {
		t.Fatalf("process should not archive while b is still pending")
	}

	host.finish(2, "b-out")
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 3: %v", err)
	}
	if host.toState != workflow.Finished {
		t.Fatalf("expected process to archive FINISHED once both children finished, got %v", host.toState)
	}
	if host.archived == nil || host.archived.StatusCode == nil || *host.archived.StatusCode != int(workflow.StatusSuccess) {
		t.Fatalf("expected a successful archive, got %+v", host.archived)
	}
}

type diamondProcess struct {
	ProcessBase
}

func (p *diamondProcess) OnStart(rc Context) error {
	p.Start("hrdb", "Register")
	p.Start("office", "ProvideOffice")
	p.Start("computer", "ProvideComputer", WithPredecessors("hrdb", "office"))
	p.Start("healthcheck", "HealthCheckUp", WithPredecessors("hrdb"))
	return nil
}

func TestProcessBaseDiamond(t *testing.T) {
	proc := &diamondProcess{}
	proc.ProcessBase = NewProcessBase(proc, ModeParallel)
	host := newFakeHost()
	rc := Context{Context: context.Background(), Host: host}

	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	if len(host.children) != 2 {
		t.Fatalf("expected only hrdb/office spawned (parallel, no predecessors), got %d", len(host.children))
	}

	// office (id 2) is a long-running polling task; hrdb (id 1) finishes
	// immediately. computer must still wait on office.
	host.finish(1, "hrdb-out")
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	if len(host.children) != 3 {
		t.Fatalf("expected healthcheck spawned once hrdb alone finished, got %d", len(host.children))
	}
	if _, ok := host.children[4]; ok {
		t.Fatalf("computer must not spawn before office finishes")
	}

	host.finish(2, "office-out")
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 3: %v", err)
	}
	if len(host.children) != 4 {
		t.Fatalf("expected computer spawned once both hrdb and office finished, got %d", len(host.children))
	}

	host.finish(3, nil)
	host.finish(4, nil)
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 4: %v", err)
	}
	if host.toState != workflow.Finished {
		t.Fatalf("expected process to archive FINISHED once every child finished, got %v", host.toState)
	}
}

func TestProcessBaseStrictMixinFailsFastAcrossPasses(t *testing.T) {
	proc := &serialChainProcess{}
	proc.ProcessBase = NewProcessBase(proc, ModeSerial)
	proc.UseStrictCompletion()
	host := newFakeHost()
	rc := Context{Context: context.Background(), Host: host}

	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	host.fail(1)
	if err := proc.Schedule(rc); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	if host.toState != workflow.Failed {
		t.Fatalf("expected strict mixin to fail the process once a failed, got %v", host.toState)
	}
	if len(host.children) != 1 {
		t.Fatalf("strict mixin must not spawn b after a's failure, got %d children", len(host.children))
	}
}
