package models

import "time"

// TransferState is the queue item state machine:
// queued -> active -> (completed | failed). Failed items are requeued until
// retry_count exceeds the configured maximum.
type TransferState string

const (
	TransferQueued    TransferState = "queued"
	TransferActive    TransferState = "active"
	TransferCompleted TransferState = "completed"
	TransferFailed    TransferState = "failed"
)

// Direction tells whether a queue item uploads to or downloads from the
// news servers.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// EntityType identifies what a queue item transfers.
type EntityType string

const (
	EntityFile   EntityType = "file"
	EntityFolder EntityType = "folder"
)

// UploadStrategy selects how a file is turned into articles. The strategy
// only affects how many articles are produced and whether compression runs;
// queue and worker mechanics are identical across strategies.
type UploadStrategy string

const (
	// StrategySimple posts a single segment without redundancy. Small files.
	StrategySimple UploadStrategy = "simple"
	// StrategyRedundant posts each article twice. Already-compressed
	// archives where compression is wasted but resilience matters.
	StrategyRedundant UploadStrategy = "redundant"
	// StrategyOptimized compresses when the probe says it pays off. Default.
	StrategyOptimized UploadStrategy = "optimized"
	// StrategyCompressed forces compression regardless of the probe.
	StrategyCompressed UploadStrategy = "compressed"
)

// TransferItem is one entry of the upload or download queue. Owned
// exclusively by the queue/worker subsystem; other layers only read
// completed results.
type TransferItem struct {
	QueueID    string
	EntityID   string
	EntityType EntityType
	Direction  Direction
	State      TransferState
	BytesDone  int64
	BytesTotal int64
	RetryCount int
	Priority   int
	// Destination is the local target directory for downloads; empty for uploads.
	Destination string
	// ShareID references the redeemed share a download was enqueued from.
	ShareID     string
	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	LastError   string
}

// Progress returns completion as a fraction in [0,1].
func (t *TransferItem) Progress() float64 {
	if t.BytesTotal <= 0 {
		return 0
	}
	p := float64(t.BytesDone) / float64(t.BytesTotal)
	if p > 1 {
		p = 1
	}
	return p
}
