package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// fakeQueue is an in-memory queue.Queue for worker-pool tests: no DB, no
// Temporal, just enough state to exercise claim/heartbeat/complete/fail.
type fakeQueue struct {
	mu        sync.Mutex
	pending   []queue.Job
	completed []int64
	failed    []int64
	heartbeat int
}

func (f *fakeQueue) Enqueue(ctx context.Context, in queue.EnqueueInput) error { return nil }

func (f *fakeQueue) Claim(ctx context.Context, workerID string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	return &job, nil
}

func (f *fakeQueue) Heartbeat(ctx context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeat++
	return nil
}

func (f *fakeQueue) Complete(ctx context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
	return nil
}

func (f *fakeQueue) Fail(ctx context.Context, jobID int64, cause error, retryable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
	return nil
}

func TestRunCompletesSuccessfulJob(t *testing.T) {
	q := &fakeQueue{}
	log, _ := logger.New("test")
	w := New(q, func(ctx context.Context, job queue.Job) error { return nil }, Config{}, nil, log)

	w.run(context.Background(), "w1", queue.Job{ID: 1, Type: queue.JobSchedule})

	if len(q.completed) != 1 || q.completed[0] != 1 {
		t.Fatalf("expected job 1 completed, got %v", q.completed)
	}
	if len(q.failed) != 0 {
		t.Fatalf("expected no failures, got %v", q.failed)
	}
}

func TestRunFailsErroringJob(t *testing.T) {
	q := &fakeQueue{}
	log, _ := logger.New("test")
	w := New(q, func(ctx context.Context, job queue.Job) error { return errors.New("boom") }, Config{}, nil, log)

	w.run(context.Background(), "w1", queue.Job{ID: 2, Type: queue.JobTransit})

	if len(q.failed) != 1 || q.failed[0] != 2 {
		t.Fatalf("expected job 2 failed, got %v", q.failed)
	}
}

func TestRunRecoversPanickingDispatch(t *testing.T) {
	q := &fakeQueue{}
	log, _ := logger.New("test")
	w := New(q, func(ctx context.Context, job queue.Job) error { panic("dispatch exploded") }, Config{}, nil, log)

	w.run(context.Background(), "w1", queue.Job{ID: 3, Type: queue.JobInitiate})

	if len(q.failed) != 1 || q.failed[0] != 3 {
		t.Fatalf("expected panicking dispatch to fail the job, got completed=%v failed=%v", q.completed, q.failed)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	q := &fakeQueue{}
	log, _ := logger.New("test")
	w := New(q, func(ctx context.Context, job queue.Job) error { return nil }, Config{Concurrency: 2, PollInterval: time.Millisecond}, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)
}
