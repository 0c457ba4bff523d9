package shares

import (
	"context"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Repository persists shares and their authorized user sets. Shares are
// never deleted; revocation only flips is_active so the access history of
// a folder stays complete.
type Repository interface {
	Create(ctx context.Context, share *models.Share) error
	Get(ctx context.Context, shareID string) (*models.Share, error)
	Revoke(ctx context.Context, shareID string, at time.Time) error
	ByFolder(ctx context.Context, folderID string) ([]*models.Share, error)
}
