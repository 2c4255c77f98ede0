package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
)

// MapError classifies infrastructure failures into workflow.ErrorCode so
// the job-queue entry points (spec.md section 7, "internal invariant
// violations") can tell a transient failure from a permanent one without
// parsing driver-specific errors themselves.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return workflow.Wrap(workflow.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return workflow.Wrap(workflow.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return workflow.Wrap(workflow.CodeConflict, op, err)
		case "23503": // foreign_key_violation
			return workflow.Wrap(workflow.CodePreconditionFailed, op, err)
		case "40001", "40P01", "55P03": // serialization/deadlock/lock_not_available
			return workflow.Wrap(workflow.CodeRetryable, op, err)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return workflow.Wrap(workflow.CodeConflict, op, err)
	case strings.Contains(msg, "deadlock"), strings.Contains(msg, "serialization"), strings.Contains(msg, "timeout"):
		return workflow.Wrap(workflow.CodeRetryable, op, err)
	default:
		return workflow.Wrap(workflow.CodeInternal, op, err)
	}
}
