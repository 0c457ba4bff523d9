package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// PostgresRepository implements the transfer queue over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const itemColumns = `queue_id, entity_id, entity_type, direction, state, bytes_done, bytes_total,
		retry_count, priority, destination, share_id, queued_at, started_at, completed_at, failed_at, last_error`

func scanItem(row interface{ Scan(dest ...any) error }) (*models.TransferItem, error) {
	var item models.TransferItem
	err := row.Scan(&item.QueueID, &item.EntityID, &item.EntityType, &item.Direction,
		&item.State, &item.BytesDone, &item.BytesTotal, &item.RetryCount, &item.Priority,
		&item.Destination, &item.ShareID, &item.QueuedAt,
		&item.StartedAt, &item.CompletedAt, &item.FailedAt, &item.LastError)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Enqueue inserts a new queued item.
func (r *PostgresRepository) Enqueue(ctx context.Context, item *models.TransferItem) error {
	query := `
		INSERT INTO transfer_items (queue_id, entity_id, entity_type, direction, state, bytes_total, priority, destination, share_id)
		VALUES ($1, $2, $3, $4, 'queued', $5, $6, $7, $8)
	`
	res, err := r.db.ExecContext(ctx, query,
		item.QueueID, item.EntityID, item.EntityType, item.Direction,
		item.BytesTotal, item.Priority, item.Destination, item.ShareID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// Get returns the item with the given queue id.
func (r *PostgresRepository) Get(ctx context.Context, queueID string) (*models.TransferItem, error) {
	query := `SELECT ` + itemColumns + ` FROM transfer_items WHERE queue_id=$1`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, queueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queue item: %w", err)
	}
	return item, nil
}

// ClaimNext flips the best queued item to active in a single statement.
// SKIP LOCKED keeps concurrent workers from claiming the same row; the
// queue_id tiebreaker makes the order deterministic when priority and
// queued_at collide.
func (r *PostgresRepository) ClaimNext(ctx context.Context, direction models.Direction) (*models.TransferItem, error) {
	query := `
		UPDATE transfer_items SET state='active', started_at=now()
		WHERE queue_id = (
			SELECT queue_id FROM transfer_items
			WHERE direction=$1 AND state='queued'
			ORDER BY priority, queued_at, queue_id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRowContext(ctx, query, direction))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item: %w", err)
	}
	return item, nil
}

// UpdateProgress records transferred bytes for an active item.
func (r *PostgresRepository) UpdateProgress(ctx context.Context, queueID string, bytesDone, bytesTotal int64) error {
	query := `UPDATE transfer_items SET bytes_done=$2, bytes_total=$3 WHERE queue_id=$1`
	_, err := r.db.ExecContext(ctx, query, queueID, bytesDone, bytesTotal)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkCompleted moves an active item to completed.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, queueID string) error {
	query := `UPDATE transfer_items SET state='completed', completed_at=now(), bytes_done=bytes_total WHERE queue_id=$1 AND state='active'`
	return r.execOne(ctx, query, queueID)
}

// MarkFailed moves an active item to terminal failed.
func (r *PostgresRepository) MarkFailed(ctx context.Context, queueID string, lastError string) error {
	query := `UPDATE transfer_items SET state='failed', failed_at=now(), last_error=$2 WHERE queue_id=$1 AND state='active'`
	return r.execOne(ctx, query, queueID, lastError)
}

// Requeue returns an active item to queued with retry_count+1.
func (r *PostgresRepository) Requeue(ctx context.Context, queueID string, lastError string) error {
	query := `UPDATE transfer_items SET state='queued', retry_count=retry_count+1, started_at=NULL, last_error=$2 WHERE queue_id=$1 AND state='active'`
	return r.execOne(ctx, query, queueID, lastError)
}

// RecoverActive requeues items left active by a crashed run.
func (r *PostgresRepository) RecoverActive(ctx context.Context) (int64, error) {
	query := `UPDATE transfer_items SET state='queued', retry_count=retry_count+1, started_at=NULL WHERE state='active'`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
