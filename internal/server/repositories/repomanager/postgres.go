// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/migrations"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/folders"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/queue"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/segments"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/servers"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/shares"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Folders returns a folders.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

// Segments returns a segments.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Segments(db dbx.DBTX) segments.Repository {
	return segments.NewPostgresRepository(db)
}

// Queue returns a queue.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Queue(db dbx.DBTX) queue.Repository {
	return queue.NewPostgresRepository(db)
}

// Servers returns a servers.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Servers(db dbx.DBTX) servers.Repository {
	return servers.NewPostgresRepository(db)
}

// Shares returns a shares.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Shares(db dbx.DBTX) shares.Repository {
	return shares.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
