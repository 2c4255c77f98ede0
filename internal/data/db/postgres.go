// Package db wires the engine's single Postgres connection, grounded on
// the teacher's internal/data/db.PostgresService (gorm.Open + a
// gormLogger bridge onto the app's own structured logger), trimmed to
// the engine's own env vars and with the product-specific uuid-ossp
// extension bootstrap dropped (domain/workflow's identifier/token codes
// are generated in Go, not via a Postgres extension).
package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/arcwelder/bpmengine/internal/platform/envutil"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// PostgresService owns the shared *gorm.DB every store package is
// constructed against.
type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPostgresService dials Postgres using POSTGRES_HOST/PORT/USER/
// PASSWORD/NAME (defaulting to a local dev database named "bpmengine"),
// bridging GORM's own query logging into the engine's structured logger.
func NewPostgresService(base *logger.Logger) (*PostgresService, error) {
	svcLog := base.With("service", "PostgresService")

	host := envutil.String("POSTGRES_HOST", "localhost")
	port := envutil.String("POSTGRES_PORT", "5432")
	user := envutil.String("POSTGRES_USER", "postgres")
	password := envutil.String("POSTGRES_PASSWORD", "")
	name := envutil.String("POSTGRES_NAME", "bpmengine")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, name,
	)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: conn, log: svcLog}, nil
}

// DB returns the underlying *gorm.DB.
func (s *PostgresService) DB() *gorm.DB { return s.db }
