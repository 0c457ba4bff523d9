package queue

import (
	"context"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Repository owns the transfer queue state machine. All state transitions
// go through it; workers never mutate items directly.
type Repository interface {
	Enqueue(ctx context.Context, item *models.TransferItem) error
	Get(ctx context.Context, queueID string) (*models.TransferItem, error)

	// ClaimNext atomically flips the best queued item of the given direction
	// to active and returns it. Ordering is priority ascending, then
	// queued_at ascending. Returns ErrorNotFound when the queue is empty.
	ClaimNext(ctx context.Context, direction models.Direction) (*models.TransferItem, error)

	UpdateProgress(ctx context.Context, queueID string, bytesDone, bytesTotal int64) error
	MarkCompleted(ctx context.Context, queueID string) error
	MarkFailed(ctx context.Context, queueID string, lastError string) error

	// Requeue returns an active item to queued with retry_count+1.
	Requeue(ctx context.Context, queueID string, lastError string) error

	// RecoverActive requeues every item left active by a crashed run,
	// bumping retry_count. Returns the number of recovered items.
	RecoverActive(ctx context.Context) (int64, error)
}
