package servers

import (
	"context"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Repository persists the configured news servers so enable/disable state
// survives restarts.
type Repository interface {
	Upsert(ctx context.Context, s *models.ServerDescriptor) error
	List(ctx context.Context) ([]*models.ServerDescriptor, error)
	SetEnabled(ctx context.Context, serverID string, enabled bool) error
}
