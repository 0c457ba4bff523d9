// Package server assembles and runs the sync engine: database and
// migrations, the news server connection pool, index and share services,
// and the transfer worker pools, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/filex"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/nntp"
	"github.com/dmitrijs2005/usenetsync/internal/server/config"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/queue"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/usenetsync/internal/server/services"
	"github.com/dmitrijs2005/usenetsync/internal/server/transfer"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// App wires the engine together and exposes its operations: registering
// folders, enqueueing transfers, shares and progress queries. Run blocks
// draining the queue until the context is cancelled or a signal arrives.
// The connection pool and workers are built inside Run, after the server
// list has been synced with the database.
type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	repos   repomanager.RepositoryManager
	pool    *nntp.Pool
	queue   queue.Repository
	index   *services.IndexService
	shares  *services.ShareService
	workers *transfer.Workers
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	index := services.NewIndexService(db, m, logger)
	shares := services.NewShareService(db, m, cfg)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		repos:  m,
		queue:  m.Queue(db),
		index:  index,
		shares: shares,
	}, nil
}

// RegisterFolder registers a local directory as a sync root and returns the
// new folder. The key salt is generated here and never leaves the database.
func (a *App) RegisterFolder(ctx context.Context, rootPath string) (*models.Folder, error) {
	folder := &models.Folder{
		FolderID: uuid.NewString(),
		RootPath: rootPath,
		KeySalt:  common.GenerateRandByteArray(16),
	}
	if err := a.index.RegisterFolder(ctx, folder); err != nil {
		return nil, err
	}
	a.logger.Info(ctx, "folder registered", "folder_id", folder.FolderID, "root", rootPath)
	return folder, nil
}

// DetectChanges scans the folder on disk and classifies every path against
// the latest published version.
func (a *App) DetectChanges(ctx context.Context, folderID string) ([]models.Change, error) {
	folder, err := a.index.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	listing, err := filex.ScanFolder(folder.RootPath)
	if err != nil {
		return nil, err
	}
	return a.index.DetectChanges(ctx, folderID, listing)
}

// EnqueueUpload queues a folder for upload and returns the queue id.
func (a *App) EnqueueUpload(ctx context.Context, folderID string, priority int) (string, error) {
	if _, err := a.index.GetFolder(ctx, folderID); err != nil {
		return "", err
	}
	item := &models.TransferItem{
		QueueID:    uuid.NewString(),
		EntityID:   folderID,
		EntityType: models.EntityFolder,
		Direction:  models.DirectionUpload,
		Priority:   priority,
	}
	if err := a.queue.Enqueue(ctx, item); err != nil {
		return "", err
	}
	return item.QueueID, nil
}

// EnqueueDownload redeems an access string and queues the shared folder
// version for download into destination.
func (a *App) EnqueueDownload(ctx context.Context, accessString, destination string, priority int) (string, error) {
	share, err := a.shares.Redeem(ctx, accessString)
	if err != nil {
		return "", err
	}
	item := &models.TransferItem{
		QueueID:     uuid.NewString(),
		EntityID:    share.FolderID,
		EntityType:  models.EntityFolder,
		Direction:   models.DirectionDownload,
		Priority:    priority,
		Destination: destination,
		ShareID:     share.ShareID,
	}
	if err := a.queue.Enqueue(ctx, item); err != nil {
		return "", err
	}
	return item.QueueID, nil
}

// PublishVersion publishes a new immutable version of a folder from
// already-recorded file entries. Uploads publish implicitly; this surface
// exists for callers that assemble entries themselves.
func (a *App) PublishVersion(ctx context.Context, folderID string, entries []*models.FileEntry) (int64, error) {
	return a.index.PublishVersion(ctx, folderID, entries)
}

// GetProgress returns the current queue state of a transfer.
func (a *App) GetProgress(ctx context.Context, queueID string) (*models.TransferItem, error) {
	return a.queue.Get(ctx, queueID)
}

// CreateShare shares a folder version. Version 0 pins the latest one.
func (a *App) CreateShare(ctx context.Context, folderID string, version int64, shareType models.ShareType, authorizedUserIDs []string) (*models.Share, error) {
	return a.shares.CreateShare(ctx, folderID, version, shareType, authorizedUserIDs)
}

// VerifyAccess checks whether userID may use the share.
func (a *App) VerifyAccess(ctx context.Context, shareID, userID string) error {
	return a.shares.VerifyAccess(ctx, shareID, userID)
}

// RevokeShare deactivates a share, keeping its history.
func (a *App) RevokeShare(ctx context.Context, shareID string) error {
	return a.shares.Revoke(ctx, shareID)
}

// AccessHistory lists every share of a folder, revoked ones included.
func (a *App) AccessHistory(ctx context.Context, folderID string) ([]*models.Share, error) {
	return a.shares.AccessHistory(ctx, folderID)
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// SetServerEnabled persists an operator's enable/disable decision for one
// news server. The pool picks it up on the next start.
func (a *App) SetServerEnabled(ctx context.Context, serverID string, enabled bool) error {
	return a.repos.Servers(a.db).SetEnabled(ctx, serverID, enabled)
}

// syncServers upserts the configured news servers and returns the merged
// list: connection details come from the config, the enabled flag from the
// database, so operator enable/disable survives restarts.
func (a *App) syncServers(ctx context.Context) ([]*models.ServerDescriptor, error) {
	repo := a.repos.Servers(a.db)
	for _, s := range a.config.ServerDescriptors() {
		if err := repo.Upsert(ctx, s); err != nil {
			return nil, fmt.Errorf("error upserting server %s: %w", s.ServerID, err)
		}
	}
	stored, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing servers: %w", err)
	}
	configured := make(map[string]bool, len(a.config.Servers))
	for _, s := range a.config.ServerDescriptors() {
		configured[s.ServerID] = true
	}
	// Rows for servers dropped from the config stay in the database for
	// history but do not join the pool.
	result := make([]*models.ServerDescriptor, 0, len(stored))
	for _, s := range stored {
		if configured[s.ServerID] {
			result = append(result, s)
		}
	}
	return result, nil
}

// Run migrates the schema, syncs the server list, builds the connection
// pool and workers from the merged server state, and drains the transfer
// queue until ctx is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	a.initSignalHandler(cancelFunc)

	if err := a.repos.RunMigrations(ctx, a.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	descriptors, err := a.syncServers(ctx)
	if err != nil {
		return err
	}

	governor := nntp.NewGovernor(a.config.MaxRateBytesPerSecond())
	a.pool = nntp.NewPool(descriptors, governor, a.logger, nntp.PoolOptions{
		HealthTTL: a.config.HealthCheckTTL,
	})
	tp := transfer.NNTPPool{Pool: a.pool}
	uploader := transfer.NewUploader(a.index, tp, a.logger, a.config)
	downloader := transfer.NewDownloader(a.index, a.shares, tp, a.logger, a.config)
	a.workers = transfer.NewWorkers(a.queue, uploader, downloader, a.logger,
		a.config.QueuePollInterval, a.config.MaxRetryCount, a.config.WorkersPerDirection)

	a.logger.Info(ctx, "engine started",
		"servers", len(descriptors),
		"workers_per_direction", a.config.WorkersPerDirection)

	err = a.workers.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if cErr := a.pool.Close(); cErr != nil {
		a.logger.Warn(ctx, "error closing pool", "error", cErr)
	}
	if cErr := a.db.Close(); cErr != nil {
		a.logger.Warn(ctx, "error closing db", "error", cErr)
	}
	a.logger.Info(ctx, "engine stopped")
	return err
}
