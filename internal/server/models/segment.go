// Package models holds the persistent domain types of the sync engine:
// segments, file entries, folder versions, transfer queue items, news server
// descriptors and shares.
package models

// Segment is the immutable unit of transport. SegmentID is the BLAKE3 hash
// of the post-transform bytes (after compression and encryption), Checksum
// the hash of the original plaintext slice. On decode SegmentID is
// recomputed and must match, otherwise the segment is rejected as corrupt.
type Segment struct {
	SegmentID     string
	FileID        string
	SequenceIndex int
	RawSize       int64
	PackedSize    int64
	Compressed    bool
	// CompressionAlg names the algorithm that produced the packed bytes
	// ("lz4", "zstd"). Empty when Compressed is false.
	CompressionAlg string
	Encrypted      bool
	Checksum       string
	// ArticleMessageIDs lists every article this segment was posted under.
	// More than one entry means redundant copies exist.
	ArticleMessageIDs []string
}

// FileEntry describes one file within a folder version. SegmentIDs are in
// concatenation order; reassembly depends on it.
type FileEntry struct {
	FileID      string
	Path        string
	Size        int64
	ContentHash string
	SegmentIDs  []string
}
