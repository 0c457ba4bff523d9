// Package filex provides the filesystem edge of the engine: scanning a
// sync folder into file entries and writing downloaded files under a
// destination root.
package filex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/usenetsync/internal/codec"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// ScanFolder walks root and returns one entry per regular file, with
// slash-separated paths relative to root and the content hash computed
// over the full file. FileID is left empty; callers assign ids when the
// entry becomes part of a version.
func ScanFolder(root string) ([]*models.FileEntry, error) {
	var result []*models.FileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		result = append(result, &models.FileEntry{
			Path:        filepath.ToSlash(rel),
			Size:        int64(len(data)),
			ContentHash: codec.FormatHash(codec.HashFile(data)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return result, nil
}

// ReadFile reads one file of a sync folder by its slash-separated
// relative path.
func ReadFile(root, relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
}

// WriteFile writes a downloaded file under destRoot, creating parent
// directories as needed. Paths escaping the destination are rejected.
func WriteFile(destRoot, relPath string, data []byte) error {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes destination", relPath)
	}

	target := filepath.Join(destRoot, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, data, 0o660); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}
