// Package dbqueue implements engine/queue.Queue on top of Postgres,
// using a SELECT ... FOR UPDATE SKIP LOCKED claim exactly like the
// teacher's job_run table (internal/data/repos/job_run.go), so multiple
// worker processes can poll the same table without double-dispatch.
package dbqueue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/queue"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// JobRow is the durable queue entry. It is a GORM model in its own
// right, unrelated to workflow.Activity, so the queue can be swapped
// out (e.g. for temporalqueue) without touching the activity schema.
type JobRow struct {
	ID          int64 `gorm:"primaryKey"`
	Type        string
	ActivityID  int64
	ToState     string
	RunAt       time.Time
	ClaimedAt   *time.Time
	ClaimedBy   string
	Attempts    int
	MaxAttempts int
	LastError   string
	DateCreated time.Time
	DateDone    *time.Time
}

func (JobRow) TableName() string { return "bpm_job_queue" }

// Config bounds retry/stale-claim behavior.
type Config struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleClaimed time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 10, RetryDelay: 30 * time.Second, StaleClaimed: 10 * time.Minute}
}

// Store implements queue.Queue.
type Store struct {
	db  *gorm.DB
	cfg Config
	log *logger.Logger
}

func New(db *gorm.DB, cfg Config, log *logger.Logger) *Store {
	return &Store{db: db, cfg: cfg, log: log.With("component", "dbqueue")}
}

var _ queue.Queue = (*Store)(nil)

func (s *Store) Enqueue(ctx context.Context, in queue.EnqueueInput) error {
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	row := &JobRow{
		Type:        string(in.Type),
		ActivityID:  in.ActivityID,
		ToState:     string(in.ToState),
		RunAt:       runAt,
		MaxAttempts: s.cfg.MaxAttempts,
		DateCreated: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// Claim atomically selects and locks the oldest runnable row: RunAt has
// passed, it isn't currently claimed (or its claim is stale), and it
// hasn't exhausted its attempts. This is the same SKIP LOCKED shape as
// the teacher's ClaimNextRunnable, applied to a generic job row instead
// of job_run.
func (s *Store) Claim(ctx context.Context, workerID string) (*queue.Job, error) {
	var claimed JobRow
	now := time.Now().UTC()
	staleBefore := now.Add(-s.cfg.StaleClaimed)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row JobRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("run_at <= ?", now).
			Where("date_done IS NULL").
			Where("attempts < max_attempts").
			Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
			Order("run_at ASC").
			First(&row).Error
		if err != nil {
			return err
		}
		row.ClaimedAt = &now
		row.ClaimedBy = workerID
		row.Attempts++
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		claimed = row
		return nil
	})
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dbqueue.Claim: %w", err)
	}
	return &queue.Job{
		ID:         claimed.ID,
		Type:       queue.JobType(claimed.Type),
		ActivityID: claimed.ActivityID,
		ToState:    workflow.State(claimed.ToState),
		Attempts:   claimed.Attempts,
	}, nil
}

func (s *Store) Heartbeat(ctx context.Context, jobID int64) error {
	return s.db.WithContext(ctx).Model(&JobRow{}).
		Where("id = ?", jobID).
		Update("claimed_at", time.Now().UTC()).Error
}

func (s *Store) Complete(ctx context.Context, jobID int64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&JobRow{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"date_done": now, "claimed_at": nil}).Error
}

func (s *Store) Fail(ctx context.Context, jobID int64, cause error, retryable bool) error {
	update := map[string]any{"claimed_at": nil}
	if cause != nil {
		update["last_error"] = cause.Error()
	}
	if !retryable {
		update["date_done"] = time.Now().UTC()
		return s.db.WithContext(ctx).Model(&JobRow{}).Where("id = ?", jobID).Updates(update).Error
	}
	var row JobRow
	if err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error; err != nil {
		return err
	}
	update["run_at"] = time.Now().UTC().Add(s.cfg.RetryDelay)
	return s.db.WithContext(ctx).Model(&JobRow{}).Where("id = ?", jobID).Updates(update).Error
}
