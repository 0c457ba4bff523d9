package folders

import (
	"context"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Repository persists folders and their immutable version index. Versions
// are append-only; nothing here updates or deletes a published version.
type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	Get(ctx context.Context, folderID string) (*models.Folder, error)
	LatestVersion(ctx context.Context, folderID string) (int64, error)
	CreateVersion(ctx context.Context, v *models.FolderVersion) error
	AddFileEntry(ctx context.Context, folderID string, version int64, position int, f *models.FileEntry) error
	FilesForVersion(ctx context.Context, folderID string, version int64) ([]*models.FileEntry, error)
}
