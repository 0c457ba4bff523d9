package models

import "time"

// Folder is a locally registered sync root. KeySalt feeds folder key
// derivation; the key itself is never persisted.
type Folder struct {
	FolderID  string
	RootPath  string
	KeySalt   []byte
	CreatedAt time.Time
}

// FolderVersion is an immutable snapshot of a folder's file/segment mapping.
// Versions are never mutated or deleted once published; any change to the
// folder produces version+1.
type FolderVersion struct {
	FolderID     string
	Version      int64
	Files        []*FileEntry
	CreatedAt    time.Time
	TotalSize    int64
	SegmentCount int
}

// ChangeType classifies one path in a change-detection pass.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeDeleted
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change records the classification of one path against the latest
// published version.
type Change struct {
	Path string
	Type ChangeType
}
