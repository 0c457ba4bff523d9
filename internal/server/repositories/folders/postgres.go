package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

// PostgresRepository implements folder and version storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create registers a new sync folder. Exactly one row must be inserted.
func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := `INSERT INTO folders (folder_id, root_path, key_salt) VALUES ($1, $2, $3)`
	res, err := r.db.ExecContext(ctx, query, folder.FolderID, folder.RootPath, folder.KeySalt)
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

// Get returns the folder row for folderID.
func (r *PostgresRepository) Get(ctx context.Context, folderID string) (*models.Folder, error) {
	query := `SELECT folder_id, root_path, key_salt, created_at FROM folders WHERE folder_id=$1`

	result := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, folderID).
		Scan(&result.FolderID, &result.RootPath, &result.KeySalt, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}
	return result, nil
}

// LatestVersion returns the highest published version for folderID, 0 when
// the folder has never been published.
func (r *PostgresRepository) LatestVersion(ctx context.Context, folderID string) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM folder_versions WHERE folder_id=$1`

	var version int64
	if err := r.db.QueryRowContext(ctx, query, folderID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to select latest version: %w", err)
	}
	return version, nil
}

// CreateVersion appends a new version row. A duplicate (folder_id, version)
// key means two publishers raced for the same version number and surfaces
// as ErrVersionConflict.
func (r *PostgresRepository) CreateVersion(ctx context.Context, v *models.FolderVersion) error {
	query := `
		INSERT INTO folder_versions (folder_id, version, total_size, segment_count)
		VALUES ($1, $2, $3, $4)
	`
	res, err := r.db.ExecContext(ctx, query, v.FolderID, v.Version, v.TotalSize, v.SegmentCount)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("version %d of folder %s: %w", v.Version, v.FolderID, common.ErrVersionConflict)
	}
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

// AddFileEntry inserts one file row of a version. Position preserves the
// listing order within the version.
func (r *PostgresRepository) AddFileEntry(ctx context.Context, folderID string, version int64, position int, f *models.FileEntry) error {
	query := `
		INSERT INTO file_entries (file_id, folder_id, version, path, size, content_hash, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query, f.FileID, folderID, version, f.Path, f.Size, f.ContentHash, position)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FilesForVersion returns the file entries of a version in listing order.
// SegmentIDs are not populated here; the segments repository owns them.
func (r *PostgresRepository) FilesForVersion(ctx context.Context, folderID string, version int64) ([]*models.FileEntry, error) {
	query := `SELECT file_id, path, size, content_hash FROM file_entries
		WHERE folder_id=$1 AND version=$2 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, folderID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to select file entries: %w", err)
	}
	defer rows.Close()

	var result []*models.FileEntry
	for rows.Next() {
		var item models.FileEntry
		if err := rows.Scan(&item.FileID, &item.Path, &item.Size, &item.ContentHash); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
