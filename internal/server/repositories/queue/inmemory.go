package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// InMemoryRepository is a mutex-guarded queue implementation with the same
// claim semantics as the Postgres one. Used by worker tests and available
// as a lightweight backend for single-process runs.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[string]*models.TransferItem
	seq   map[string]int64
	next  int64
}

// NewInMemoryRepository constructs an empty in-memory queue.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*models.TransferItem),
		seq:   make(map[string]int64),
	}
}

func (r *InMemoryRepository) Enqueue(ctx context.Context, item *models.TransferItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *item
	cp.State = models.TransferQueued
	if cp.QueuedAt.IsZero() {
		cp.QueuedAt = time.Now()
	}
	r.items[cp.QueueID] = &cp
	r.next++
	r.seq[cp.QueueID] = r.next
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, queueID string) (*models.TransferItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[queueID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *InMemoryRepository) ClaimNext(ctx context.Context, direction models.Direction) (*models.TransferItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var queued []*models.TransferItem
	for _, item := range r.items {
		if item.Direction == direction && item.State == models.TransferQueued {
			queued = append(queued, item)
		}
	}
	if len(queued) == 0 {
		return nil, common.ErrorNotFound
	}
	sort.Slice(queued, func(i, j int) bool {
		a, b := queued[i], queued[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.QueuedAt.Equal(b.QueuedAt) {
			return a.QueuedAt.Before(b.QueuedAt)
		}
		return r.seq[a.QueueID] < r.seq[b.QueueID]
	})

	item := queued[0]
	now := time.Now()
	item.State = models.TransferActive
	item.StartedAt = &now
	cp := *item
	return &cp, nil
}

func (r *InMemoryRepository) UpdateProgress(ctx context.Context, queueID string, bytesDone, bytesTotal int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[queueID]
	if !ok {
		return common.ErrorNotFound
	}
	item.BytesDone = bytesDone
	item.BytesTotal = bytesTotal
	return nil
}

func (r *InMemoryRepository) MarkCompleted(ctx context.Context, queueID string) error {
	return r.transition(queueID, func(item *models.TransferItem) {
		now := time.Now()
		item.State = models.TransferCompleted
		item.CompletedAt = &now
		item.BytesDone = item.BytesTotal
	})
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, queueID string, lastError string) error {
	return r.transition(queueID, func(item *models.TransferItem) {
		now := time.Now()
		item.State = models.TransferFailed
		item.FailedAt = &now
		item.LastError = lastError
	})
}

func (r *InMemoryRepository) Requeue(ctx context.Context, queueID string, lastError string) error {
	return r.transition(queueID, func(item *models.TransferItem) {
		item.State = models.TransferQueued
		item.RetryCount++
		item.StartedAt = nil
		item.LastError = lastError
	})
}

func (r *InMemoryRepository) RecoverActive(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, item := range r.items {
		if item.State == models.TransferActive {
			item.State = models.TransferQueued
			item.RetryCount++
			item.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) transition(queueID string, apply func(*models.TransferItem)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[queueID]
	if !ok {
		return common.ErrorNotFound
	}
	if item.State != models.TransferActive {
		return common.ErrorInternal
	}
	apply(item)
	return nil
}
