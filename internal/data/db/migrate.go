// Package db's migration step, trimmed from the teacher's 50+ model
// AutoMigrateAll down to exactly the engine's own durable rows:
// domain/workflow's four activity tables and dbqueue's job table. The
// teacher's per-domain EnsureXIndexes helpers (auth/chat/learning) are
// dropped outright (spec.md's Non-goals exclude those domains entirely,
// and GORM's own struct tags already express every index this schema
// needs, so there is nothing left to reconcile by hand).
package db

import (
	"gorm.io/gorm"

	"github.com/arcwelder/bpmengine/internal/domain/workflow"
	"github.com/arcwelder/bpmengine/internal/engine/queue/dbqueue"
)

// AutoMigrateAll creates/updates every table the engine owns.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&workflow.Activity{},
		&workflow.ActivityRelationship{},
		&workflow.ActivityInputs{},
		&workflow.ActivityOutputs{},
		&workflow.ActivitySnapshot{},
		&dbqueue.JobRow{},
	)
}

// AutoMigrateAll runs the full migration against the service's own
// connection, logging success/failure the way the teacher's
// PostgresService.AutoMigrateAll does.
func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("auto migration failed", "error", err)
		return err
	}
	return nil
}
