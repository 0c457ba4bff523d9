// Package transfer runs the upload and download sides of the engine: the
// worker pools draining the queue, strategy selection, article posting and
// retrieval, and retry orchestration driven by error classification.
package transfer

import (
	"path"
	"strings"

	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// precompressedExts are formats where another compression pass is wasted;
// those files go out redundantly instead.
var precompressedExts = map[string]bool{
	".zip": true, ".gz": true, ".bz2": true, ".xz": true, ".zst": true,
	".rar": true, ".7z": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".mp3": true, ".mp4": true, ".mkv": true, ".avi": true,
}

// textExts reliably compress well, so the probe is skipped for them.
var textExts = map[string]bool{
	".txt": true, ".log": true, ".csv": true, ".json": true,
	".xml": true, ".html": true, ".md": true, ".sql": true,
}

// ChooseStrategy picks an upload strategy from the file's name and size.
// Files fitting one segment are posted plainly; known pre-compressed
// formats get redundancy instead of compression; known text formats are
// always compressed; everything else relies on the compression probe.
func ChooseStrategy(filePath string, size int64, segmentSize int) models.UploadStrategy {
	if size <= int64(segmentSize) {
		return models.StrategySimple
	}
	ext := strings.ToLower(path.Ext(filePath))
	if precompressedExts[ext] {
		return models.StrategyRedundant
	}
	if textExts[ext] {
		return models.StrategyCompressed
	}
	return models.StrategyOptimized
}
