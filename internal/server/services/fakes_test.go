package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/folders"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/queue"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/segments"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/servers"
	"github.com/dmitrijs2005/usenetsync/internal/server/repositories/shares"
)

// newServiceDB returns a sqlmock db for services. Transactional service
// calls only touch Begin/Commit on it; the fake repositories hold the data.
func newServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeFolders struct {
	folders  map[string]*models.Folder
	versions map[string]map[int64]*models.FolderVersion
	entries  map[string]map[int64][]*models.FileEntry
}

func newFakeFolders() *fakeFolders {
	return &fakeFolders{
		folders:  make(map[string]*models.Folder),
		versions: make(map[string]map[int64]*models.FolderVersion),
		entries:  make(map[string]map[int64][]*models.FileEntry),
	}
}

func (f *fakeFolders) Create(ctx context.Context, folder *models.Folder) error {
	if _, ok := f.folders[folder.FolderID]; ok {
		return fmt.Errorf("duplicate folder")
	}
	f.folders[folder.FolderID] = folder
	return nil
}

func (f *fakeFolders) Get(ctx context.Context, folderID string) (*models.Folder, error) {
	folder, ok := f.folders[folderID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return folder, nil
}

func (f *fakeFolders) LatestVersion(ctx context.Context, folderID string) (int64, error) {
	var latest int64
	for v := range f.versions[folderID] {
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

func (f *fakeFolders) CreateVersion(ctx context.Context, v *models.FolderVersion) error {
	if f.versions[v.FolderID] == nil {
		f.versions[v.FolderID] = make(map[int64]*models.FolderVersion)
	}
	if _, ok := f.versions[v.FolderID][v.Version]; ok {
		return fmt.Errorf("duplicate version %d", v.Version)
	}
	f.versions[v.FolderID][v.Version] = v
	return nil
}

func (f *fakeFolders) AddFileEntry(ctx context.Context, folderID string, version int64, position int, e *models.FileEntry) error {
	if f.entries[folderID] == nil {
		f.entries[folderID] = make(map[int64][]*models.FileEntry)
	}
	cp := *e
	f.entries[folderID][version] = append(f.entries[folderID][version], &cp)
	return nil
}

func (f *fakeFolders) FilesForVersion(ctx context.Context, folderID string, version int64) ([]*models.FileEntry, error) {
	var result []*models.FileEntry
	for _, e := range f.entries[folderID][version] {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

type fakeSegments struct {
	segments map[string][]*models.Segment
	articles map[string][]string // keyed by fileID+segmentID
}

func newFakeSegments() *fakeSegments {
	return &fakeSegments{
		segments: make(map[string][]*models.Segment),
		articles: make(map[string][]string),
	}
}

func (f *fakeSegments) Add(ctx context.Context, seg *models.Segment) error {
	cp := *seg
	cp.ArticleMessageIDs = nil
	f.segments[seg.FileID] = append(f.segments[seg.FileID], &cp)
	return nil
}

func (f *fakeSegments) AddArticle(ctx context.Context, fileID, segmentID, messageID, serverID string) error {
	key := fileID + "/" + segmentID
	f.articles[key] = append(f.articles[key], messageID)
	return nil
}

func (f *fakeSegments) ForFile(ctx context.Context, fileID string) ([]*models.Segment, error) {
	var result []*models.Segment
	for _, seg := range f.segments[fileID] {
		cp := *seg
		cp.ArticleMessageIDs = f.articles[fileID+"/"+seg.SegmentID]
		result = append(result, &cp)
	}
	return result, nil
}

type fakeShares struct {
	shares []*models.Share
}

func (f *fakeShares) Create(ctx context.Context, share *models.Share) error {
	cp := *share
	cp.CreatedAt = time.Now()
	f.shares = append(f.shares, &cp)
	return nil
}

func (f *fakeShares) Get(ctx context.Context, shareID string) (*models.Share, error) {
	for _, s := range f.shares {
		if s.ShareID == shareID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeShares) Revoke(ctx context.Context, shareID string, at time.Time) error {
	for _, s := range f.shares {
		if s.ShareID == shareID && s.IsActive {
			s.IsActive = false
			s.RevokedAt = &at
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeShares) ByFolder(ctx context.Context, folderID string) ([]*models.Share, error) {
	var result []*models.Share
	for i := len(f.shares) - 1; i >= 0; i-- {
		if f.shares[i].FolderID == folderID {
			cp := *f.shares[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// fakeManager vends the in-memory fakes regardless of the db handle it is
// given, so transactional and plain calls see the same state.
type fakeManager struct {
	folders  *fakeFolders
	segments *fakeSegments
	shares   *fakeShares
	queue    *queue.InMemoryRepository
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		folders:  newFakeFolders(),
		segments: newFakeSegments(),
		shares:   &fakeShares{},
		queue:    queue.NewInMemoryRepository(),
	}
}

func (m *fakeManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeManager) Folders(db dbx.DBTX) folders.Repository             { return m.folders }
func (m *fakeManager) Segments(db dbx.DBTX) segments.Repository           { return m.segments }
func (m *fakeManager) Queue(db dbx.DBTX) queue.Repository                 { return m.queue }
func (m *fakeManager) Servers(db dbx.DBTX) servers.Repository             { return nil }
func (m *fakeManager) Shares(db dbx.DBTX) shares.Repository               { return m.shares }
