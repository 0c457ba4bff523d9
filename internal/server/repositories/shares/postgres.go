package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// PostgresRepository implements share storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the share row and its authorized user set. Callers wanting
// atomicity run it inside dbx.WithTx.
func (r *PostgresRepository) Create(ctx context.Context, share *models.Share) error {
	query := `
		INSERT INTO shares (share_id, folder_id, version, share_type, access_string, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`
	res, err := r.db.ExecContext(ctx, query,
		share.ShareID, share.FolderID, share.Version, share.Type, share.AccessString)
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

	for _, userID := range share.AuthorizedUserIDs {
		userQuery := `INSERT INTO share_users (share_id, user_id) VALUES ($1, $2)`
		if _, err := r.db.ExecContext(ctx, userQuery, share.ShareID, userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// Get returns one share with its authorized user set.
func (r *PostgresRepository) Get(ctx context.Context, shareID string) (*models.Share, error) {
	query := `SELECT share_id, folder_id, version, share_type, access_string, created_at, is_active, revoked_at
		FROM shares WHERE share_id=$1`

	result := &models.Share{}
	err := r.db.QueryRowContext(ctx, query, shareID).
		Scan(&result.ShareID, &result.FolderID, &result.Version, &result.Type,
			&result.AccessString, &result.CreatedAt, &result.IsActive, &result.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select share: %w", err)
	}

	users, err := r.usersFor(ctx, shareID)
	if err != nil {
		return nil, err
	}
	result.AuthorizedUserIDs = users
	return result, nil
}

func (r *PostgresRepository) usersFor(ctx context.Context, shareID string) ([]string, error) {
	query := `SELECT user_id FROM share_users WHERE share_id=$1 ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to select share users: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		result = append(result, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Revoke deactivates a share. Revoking an already revoked or unknown share
// affects no rows and returns ErrorNotFound.
func (r *PostgresRepository) Revoke(ctx context.Context, shareID string, at time.Time) error {
	query := `UPDATE shares SET is_active=FALSE, revoked_at=$2 WHERE share_id=$1 AND is_active=TRUE`
	res, err := r.db.ExecContext(ctx, query, shareID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// ByFolder returns every share ever created for a folder, newest first,
// revoked ones included.
func (r *PostgresRepository) ByFolder(ctx context.Context, folderID string) ([]*models.Share, error) {
	query := `SELECT share_id, folder_id, version, share_type, access_string, created_at, is_active, revoked_at
		FROM shares WHERE folder_id=$1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select shares: %w", err)
	}
	defer rows.Close()

	var result []*models.Share
	for rows.Next() {
		var item models.Share
		if err := rows.Scan(&item.ShareID, &item.FolderID, &item.Version, &item.Type,
			&item.AccessString, &item.CreatedAt, &item.IsActive, &item.RevokedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
