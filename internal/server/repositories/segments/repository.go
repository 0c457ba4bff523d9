package segments

import (
	"context"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Repository persists segment metadata and the article postings behind each
// segment. A segment can be backed by more than one article when it was
// posted redundantly.
type Repository interface {
	Add(ctx context.Context, seg *models.Segment) error
	AddArticle(ctx context.Context, fileID, segmentID, messageID, serverID string) error
	ForFile(ctx context.Context, fileID string) ([]*models.Segment, error)
}
