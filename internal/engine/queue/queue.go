// Package queue defines the job-queue contract the four dispatch entry
// points (initiate/schedule/transit/acknowledge) are enqueued onto
// (spec.md section 5/6). Two implementations are provided:
// dbqueue (Postgres SKIP LOCKED polling, the default) and
// temporalqueue (Temporal workflows/signals, for deployments that
// already run a Temporal cluster).
package queue

import (
	"context"
	"time"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// JobType names one of the engine's four entry points.
type JobType string

const (
	JobInitiate    JobType = "initiate"
	JobSchedule    JobType = "schedule"
	JobTransit     JobType = "transit"
	JobAcknowledge JobType = "acknowledge"
)

// EnqueueInput describes one unit of work to place on the queue.
// ToState is only meaningful for JobTransit. RunAt is zero for
// "as soon as possible".
type EnqueueInput struct {
	Type       JobType
	ActivityID int64
	ToState    workflow.State
	RunAt      time.Time
}

// Job is a claimed unit of work, handed to the dispatcher in
// engine/jobs.
type Job struct {
	ID         int64
	Type       JobType
	ActivityID int64
	ToState    workflow.State
	Attempts   int
}

// Queue is the narrow contract engine/worker depends on. Claim returns
// (nil, nil) when there is no runnable work, not an error: an empty
// queue is the normal idle state, not a failure.
type Queue interface {
	Enqueue(ctx context.Context, in EnqueueInput) error
	Claim(ctx context.Context, workerID string) (*Job, error)
	Heartbeat(ctx context.Context, jobID int64) error
	Complete(ctx context.Context, jobID int64) error
	// Fail marks a job failed; retryable controls whether it is
	// re-queued (with backoff) or left terminally failed.
	Fail(ctx context.Context, jobID int64, cause error, retryable bool) error
}
