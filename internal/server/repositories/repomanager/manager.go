package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/folders"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/queue"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/segments"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/servers"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/shares"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Folders(db dbx.DBTX) folders.Repository
	Segments(db dbx.DBTX) segments.Repository
	Queue(db dbx.DBTX) queue.Repository
	Servers(db dbx.DBTX) servers.Repository
	Shares(db dbx.DBTX) shares.Repository
}
