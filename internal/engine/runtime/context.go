// Package runtime holds the pure, DB-agnostic scheduling logic for the
// two activity kinds (spec.md section 4.3/4.4: Task and Process). It
// depends only on the narrow Host interface below, never on
// store/activitystore directly, so that ProcessBase/TaskBase can be unit
// tested without a database and so engine/jobs (which does own a real
// Store) can own the only concrete implementation.
package runtime

import (
	"context"
	"time"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// ActivityView is the read-only projection of an activity row that
// runtime code is allowed to see. It deliberately omits TokenCode: a
// runtime object never performs its own CAS update, it only describes
// the outcome it wants and lets the Host apply it (spec.md section
// 4.2's "_transit is the only path" discipline).
type ActivityView struct {
	ID             int64
	Name           string
	IdentifierCode string
	ParentID       *int64
	State          workflow.State
	StatusCode     *int
	DateCreated    time.Time
	DateArchived   *time.Time
}

// ChildCreateInput describes a single child activity to create, handed
// back to the Host by ProcessBase.Schedule (spec.md section 4.5, "spawn
// a child").
type ChildCreateInput struct {
	Name   string
	Args   map[string]any
	Kwargs map[string]any
}

// Archive is what a Task/Process hands back to the Host when it decides
// to finish a run (spec.md section 4.1's FINISHED/FAILED/REVOKED
// archival). A nil Archive means "not finished yet, re-arm me".
type Archive struct {
	ToState    workflow.State
	StatusCode *int
	Data       any
	ExData     any
}

// Finished builds a successful-completion Archive.
func Finished(data, exData any) *Archive {
	code := int(workflow.StatusSuccess)
	return &Archive{ToState: workflow.Finished, StatusCode: &code, Data: data, ExData: exData}
}

// FailedArchive builds a failure Archive with an explicit status code
// (spec.md section 7's StatusCode table).
func FailedArchive(code workflow.StatusCode, exData any) *Archive {
	c := int(code)
	return &Archive{ToState: workflow.Failed, StatusCode: &c, ExData: exData}
}

// Host is everything a runtime object needs from the persistence layer,
// narrowed to exactly the operations Task/Process scheduling performs.
// engine/jobs provides the concrete adapter over store/activitystore.
type Host interface {
	// Self returns the activity row the current job is running against.
	Self(ctx context.Context) (ActivityView, error)
	// LoadInputs decodes the (args, kwargs) this activity was created with.
	LoadInputs(ctx context.Context) (args any, kwargs any, err error)
	// LoadSnapshot returns the last persisted runtime snapshot, or nil if
	// this is the activity's first scheduling pass.
	LoadSnapshot(ctx context.Context) ([]byte, error)
	// SaveSnapshot persists an updated runtime snapshot without changing
	// state (the non-archival branch of _transit).
	SaveSnapshot(ctx context.Context, snapshot []byte) error
	// Children returns the direct children of the current activity.
	Children(ctx context.Context) ([]ActivityView, error)
	// ChildOutcome loads the (data, ex_data, status_code) of a finished
	// child, used to resolve HandlerRef data-flow edges.
	ChildOutcome(ctx context.Context, childID int64) (data any, exData any, statusCode *int, err error)
	// SpawnChild creates one new child activity and enqueues its initiate
	// job. Returns the new child's id.
	SpawnChild(ctx context.Context, in ChildCreateInput) (int64, error)
	// ScheduleAfter re-enqueues a schedule job for the current activity
	// after delay (spec.md section 4.4's interval-generator countdown).
	ScheduleAfter(ctx context.Context, delay time.Duration) error
	// TransitTo drives a _transit call for the current activity. archive
	// is nil for a non-archival snapshot-only update.
	TransitTo(ctx context.Context, toState workflow.State, archive *Archive, snapshot []byte) (bool, error)
}

// Context bundles what a single Schedule invocation needs: the ambient
// context.Context plus the Host it runs against.
type Context struct {
	context.Context
	Host Host
	// Attempt is the 1-based count of schedule passes TaskBase has run
	// for this activity so far, including this one. It is 0 for a
	// Context handed to a ProcessRunner, which tracks its own progress
	// through ChildSpec/ChildStatus instead of a raw attempt counter.
	Attempt int
}
