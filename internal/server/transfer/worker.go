package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/queue"
	"github.com/dmitrijs2005/usenetsync/internal/server/services"
	"golang.org/x/sync/errgroup"
)

// Index is the slice of the index service transfers need.
type Index interface {
	GetFolder(ctx context.Context, folderID string) (*models.Folder, error)
	Resolve(ctx context.Context, folderID string, version int64) (*services.ResolvedVersion, error)
	PublishVersion(ctx context.Context, folderID string, entries []*models.FileEntry) (int64, error)
	RecordSegment(ctx context.Context, seg *models.Segment, postings []services.Posting) error
}

// Shares resolves the share a download was enqueued from.
type Shares interface {
	GetShare(ctx context.Context, shareID string) (*models.Share, error)
}

// ProgressFunc reports transferred bytes back to the queue.
type ProgressFunc func(bytesDone, bytesTotal int64)

// Processor handles one claimed queue item.
type Processor interface {
	Process(ctx context.Context, item *models.TransferItem, progress ProgressFunc) error
}

// Workers drains the transfer queue with a fixed pool per direction. Item
// outcomes follow error classification: transient failures requeue until
// the retry budget is spent, integrity and exhaustion failures are
// terminal.
type Workers struct {
	queue        queue.Repository
	uploader     Processor
	downloader   Processor
	logger       logging.Logger
	pollInterval time.Duration
	maxRetry     int
	perDirection int
}

// NewWorkers constructs the worker pools.
func NewWorkers(q queue.Repository, up, down Processor, logger logging.Logger,
	pollInterval time.Duration, maxRetry, perDirection int) *Workers {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if perDirection <= 0 {
		perDirection = 1
	}
	return &Workers{
		queue:        q,
		uploader:     up,
		downloader:   down,
		logger:       logger,
		pollInterval: pollInterval,
		maxRetry:     maxRetry,
		perDirection: perDirection,
	}
}

// Run recovers items stranded by a previous crash, then blocks draining
// the queue until ctx is cancelled. In-flight items finish before workers
// exit; their results are written with a detached context.
func (w *Workers) Run(ctx context.Context) error {
	recovered, err := w.queue.RecoverActive(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		w.logger.Warn(ctx, "recovered stranded queue items", "count", recovered)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.perDirection; i++ {
		g.Go(func() error { return w.loop(ctx, models.DirectionUpload, w.uploader) })
		g.Go(func() error { return w.loop(ctx, models.DirectionDownload, w.downloader) })
	}
	return g.Wait()
}

func (w *Workers) loop(ctx context.Context, direction models.Direction, p Processor) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := w.queue.ClaimNext(ctx, direction)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				w.logger.Error(ctx, "claim failed", "direction", string(direction), "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollInterval):
			}
			continue
		}
		w.handle(ctx, item, p)
	}
}

// handle runs one item through its processor and applies the outcome. The
// finalizing queue writes use a detached context so a shutdown signal
// cannot strand the item in active state.
func (w *Workers) handle(ctx context.Context, item *models.TransferItem, p Processor) {
	log := w.logger.With("queue_id", item.QueueID, "direction", string(item.Direction))
	log.Debug(ctx, "item claimed", "entity_id", item.EntityID, "retry_count", item.RetryCount)

	err := p.Process(ctx, item, func(done, total int64) {
		if uErr := w.queue.UpdateProgress(ctx, item.QueueID, done, total); uErr != nil {
			log.Warn(ctx, "progress update failed", "error", uErr)
		}
	})

	finishCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		if mErr := w.queue.MarkCompleted(finishCtx, item.QueueID); mErr != nil {
			log.Error(ctx, "completion update failed", "error", mErr)
		}
		log.Info(ctx, "item completed")

	case common.IsPermanent(err):
		if mErr := w.queue.MarkFailed(finishCtx, item.QueueID, err.Error()); mErr != nil {
			log.Error(ctx, "failure update failed", "error", mErr)
		}
		log.Error(ctx, "item failed", "kind", common.ClassifyError(err).String(), "error", err)

	case item.RetryCount >= w.maxRetry:
		if mErr := w.queue.MarkFailed(finishCtx, item.QueueID, err.Error()); mErr != nil {
			log.Error(ctx, "failure update failed", "error", mErr)
		}
		log.Error(ctx, "item failed, retries exhausted", "retry_count", item.RetryCount, "error", err)

	default:
		if mErr := w.queue.Requeue(finishCtx, item.QueueID, err.Error()); mErr != nil {
			log.Error(ctx, "requeue failed", "error", mErr)
		}
		log.Warn(ctx, "item requeued", "retry_count", item.RetryCount+1, "error", err)
	}
}
