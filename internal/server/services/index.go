// Package services contains the engine's business logic. This file
// implements IndexService, the append-only versioned index: publishing new
// folder versions, resolving a version to its files/segments/articles, and
// change detection against the latest version.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/repomanager"
)

// IndexService owns the folder version index. Versions are immutable:
// publishing always allocates previous+1 and nothing here updates or
// deletes a published version.
type IndexService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewIndexService constructs an IndexService using repositories.
func NewIndexService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *IndexService {
	return &IndexService{db: db, repomanager: m, logger: logger}
}

// ResolvedVersion bundles one version's file entries with their segment
// metadata, keyed by file id.
type ResolvedVersion struct {
	Version  *models.FolderVersion
	Segments map[string][]*models.Segment
}

// Posting records where one article of a segment went.
type Posting struct {
	MessageID string
	ServerID  string
}

// RegisterFolder creates a new sync folder row.
func (s *IndexService) RegisterFolder(ctx context.Context, folder *models.Folder) error {
	return s.repomanager.Folders(s.db).Create(ctx, folder)
}

// GetFolder returns the folder row for folderID.
func (s *IndexService) GetFolder(ctx context.Context, folderID string) (*models.Folder, error) {
	return s.repomanager.Folders(s.db).Get(ctx, folderID)
}

// PublishVersion allocates the next version number for folderID and writes
// the version row plus all file entries in one transaction. Concurrent
// publishers conflict on the (folder_id, version) primary key, so the
// allocation is race-free.
func (s *IndexService) PublishVersion(ctx context.Context, folderID string, entries []*models.FileEntry) (int64, error) {
	var version int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Folders(tx)

		latest, err := repo.LatestVersion(ctx, folderID)
		if err != nil {
			return fmt.Errorf("error selecting latest version: %w", err)
		}
		version = latest + 1

		var totalSize int64
		var segmentCount int
		for _, e := range entries {
			totalSize += e.Size
			segmentCount += len(e.SegmentIDs)
		}

		if err := repo.CreateVersion(ctx, &models.FolderVersion{
			FolderID:     folderID,
			Version:      version,
			TotalSize:    totalSize,
			SegmentCount: segmentCount,
		}); err != nil {
			return fmt.Errorf("error creating version: %w", err)
		}

		for i, e := range entries {
			if err := repo.AddFileEntry(ctx, folderID, version, i, e); err != nil {
				return fmt.Errorf("error adding file entry %s: %w", e.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "published version", "folder_id", folderID, "version", version, "files", len(entries))
	return version, nil
}

// RecordSegment persists segment metadata and its article postings
// transactionally. Called by upload workers after every article of the
// segment was accepted.
func (s *IndexService) RecordSegment(ctx context.Context, seg *models.Segment, postings []Posting) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Segments(tx)
		if err := repo.Add(ctx, seg); err != nil {
			return fmt.Errorf("error adding segment: %w", err)
		}
		for _, p := range postings {
			if err := repo.AddArticle(ctx, seg.FileID, seg.SegmentID, p.MessageID, p.ServerID); err != nil {
				return fmt.Errorf("error adding article: %w", err)
			}
		}
		return nil
	})
}

// Resolve returns the files and segments of a version. Version 0 means the
// latest published version. Unknown folder or version yields ErrorNotFound.
func (s *IndexService) Resolve(ctx context.Context, folderID string, version int64) (*ResolvedVersion, error) {
	repo := s.repomanager.Folders(s.db)

	latest, err := repo.LatestVersion(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("error selecting latest version: %w", err)
	}
	if latest == 0 {
		return nil, common.ErrorNotFound
	}
	if version == 0 {
		version = latest
	}
	if version > latest {
		return nil, common.ErrorNotFound
	}

	files, err := repo.FilesForVersion(ctx, folderID, version)
	if err != nil {
		return nil, fmt.Errorf("error selecting file entries: %w", err)
	}

	segRepo := s.repomanager.Segments(s.db)
	result := &ResolvedVersion{
		Version: &models.FolderVersion{
			FolderID: folderID,
			Version:  version,
			Files:    files,
		},
		Segments: make(map[string][]*models.Segment, len(files)),
	}
	for _, f := range files {
		segs, err := segRepo.ForFile(ctx, f.FileID)
		if err != nil {
			return nil, fmt.Errorf("error selecting segments for %s: %w", f.Path, err)
		}
		ids := make([]string, 0, len(segs))
		for _, seg := range segs {
			ids = append(ids, seg.SegmentID)
		}
		f.SegmentIDs = ids
		result.Segments[f.FileID] = segs
		result.Version.TotalSize += f.Size
		result.Version.SegmentCount += len(segs)
	}
	return result, nil
}

// DetectChanges classifies a fresh folder listing against the latest
// published version by content hash. With no published version every file
// in the listing is added.
func (s *IndexService) DetectChanges(ctx context.Context, folderID string, listing []*models.FileEntry) ([]models.Change, error) {
	repo := s.repomanager.Folders(s.db)

	latest, err := repo.LatestVersion(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("error selecting latest version: %w", err)
	}

	previous := map[string]string{}
	if latest > 0 {
		files, err := repo.FilesForVersion(ctx, folderID, latest)
		if err != nil {
			return nil, fmt.Errorf("error selecting file entries: %w", err)
		}
		for _, f := range files {
			previous[f.Path] = f.ContentHash
		}
	}

	var changes []models.Change
	seen := make(map[string]bool, len(listing))
	for _, f := range listing {
		seen[f.Path] = true
		hash, ok := previous[f.Path]
		switch {
		case !ok:
			changes = append(changes, models.Change{Path: f.Path, Type: models.ChangeAdded})
		case hash != f.ContentHash:
			changes = append(changes, models.Change{Path: f.Path, Type: models.ChangeModified})
		}
	}
	var deleted []string
	for path := range previous {
		if !seen[path] {
			deleted = append(deleted, path)
		}
	}
	sort.Strings(deleted)
	for _, path := range deleted {
		changes = append(changes, models.Change{Path: path, Type: models.ChangeDeleted})
	}
	return changes, nil
}
