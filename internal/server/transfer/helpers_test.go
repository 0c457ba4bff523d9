package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/nntp"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/services"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeIndex is an in-memory stand-in for the index service.
type fakeIndex struct {
	mu       sync.Mutex
	folders  map[string]*models.Folder
	versions map[string][][]*models.FileEntry
	segments map[string][]*models.Segment
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		folders:  make(map[string]*models.Folder),
		versions: make(map[string][][]*models.FileEntry),
		segments: make(map[string][]*models.Segment),
	}
}

func (f *fakeIndex) GetFolder(ctx context.Context, folderID string) (*models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[folderID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return folder, nil
}

func (f *fakeIndex) PublishVersion(ctx context.Context, folderID string, entries []*models.FileEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*models.FileEntry, len(entries))
	for i, e := range entries {
		c := *e
		cp[i] = &c
	}
	f.versions[folderID] = append(f.versions[folderID], cp)
	return int64(len(f.versions[folderID])), nil
}

func (f *fakeIndex) RecordSegment(ctx context.Context, seg *models.Segment, postings []services.Posting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *seg
	cp.ArticleMessageIDs = nil
	for _, p := range postings {
		cp.ArticleMessageIDs = append(cp.ArticleMessageIDs, p.MessageID)
	}
	f.segments[seg.FileID] = append(f.segments[seg.FileID], &cp)
	return nil
}

func (f *fakeIndex) Resolve(ctx context.Context, folderID string, version int64) (*services.ResolvedVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	versions := f.versions[folderID]
	if len(versions) == 0 {
		return nil, common.ErrorNotFound
	}
	if version == 0 {
		version = int64(len(versions))
	}
	if version > int64(len(versions)) {
		return nil, common.ErrorNotFound
	}

	files := versions[version-1]
	result := &services.ResolvedVersion{
		Version:  &models.FolderVersion{FolderID: folderID, Version: version},
		Segments: make(map[string][]*models.Segment),
	}
	for _, e := range files {
		cp := *e
		result.Version.Files = append(result.Version.Files, &cp)
		result.Version.TotalSize += e.Size
		result.Segments[e.FileID] = f.segments[e.FileID]
	}
	return result, nil
}

type fakeShares struct {
	shares map[string]*models.Share
}

func (f *fakeShares) GetShare(ctx context.Context, shareID string) (*models.Share, error) {
	share, ok := f.shares[shareID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return share, nil
}

// fakePool simulates a set of news servers over one shared article store,
// the way propagation makes every article reachable from every server.
type fakePool struct {
	mu        sync.Mutex
	articles  map[string][]byte
	servers   []string
	postedTo  map[string]string // message id -> server that accepted the post
	throttled int64
	// throttle balance seen by the first Article read, -1 before any read
	throttledAtFirstRead int64
}

func newFakePool(servers ...string) *fakePool {
	if len(servers) == 0 {
		servers = []string{"primary", "backup"}
	}
	return &fakePool{
		articles:             make(map[string][]byte),
		postedTo:             make(map[string]string),
		servers:              servers,
		throttledAtFirstRead: -1,
	}
}

func (p *fakePool) resetThrottle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.throttled = 0
	p.throttledAtFirstRead = -1
}

func messageIDOf(article []byte) string {
	for _, line := range strings.Split(string(article), "\r\n") {
		if rest, ok := strings.CutPrefix(line, "Message-ID: "); ok {
			return rest
		}
	}
	return ""
}

type fakeTransport struct {
	pool     *fakePool
	serverID string
}

func (t *fakeTransport) Post(article []byte) error {
	id := messageIDOf(article)
	if id == "" {
		return fmt.Errorf("article without message id")
	}
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	cp := make([]byte, len(article))
	copy(cp, article)
	t.pool.articles[id] = cp
	t.pool.postedTo[id] = t.serverID
	return nil
}

func (t *fakeTransport) Article(id string) ([]byte, error) {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	if t.pool.throttledAtFirstRead < 0 {
		t.pool.throttledAtFirstRead = t.pool.throttled
	}
	article, ok := t.pool.articles[id]
	if !ok {
		return nil, common.ErrArticleNotFound
	}
	return article, nil
}

func (t *fakeTransport) Ping() error  { return nil }
func (t *fakeTransport) Close() error { return nil }

type fakePooledConn struct {
	transport *fakeTransport
	server    *models.ServerDescriptor
}

func (c *fakePooledConn) Transport() nntp.Transport        { return c.transport }
func (c *fakePooledConn) Server() *models.ServerDescriptor { return c.server }

func (p *fakePool) Acquire(ctx context.Context, exclude ...string) (PooledConn, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	for _, id := range p.servers {
		if excluded[id] {
			continue
		}
		return &fakePooledConn{
			transport: &fakeTransport{pool: p, serverID: id},
			server:    &models.ServerDescriptor{ServerID: id, Host: id},
		}, nil
	}
	return nil, common.NewExhaustedError(common.ErrNoServerAvailable)
}

func (p *fakePool) Release(pc PooledConn, opErr error) {}

func (p *fakePool) Throttle(ctx context.Context, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.throttled += int64(n)
	return nil
}

// dropArticle simulates article expiry on the servers.
func (p *fakePool) dropArticle(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.articles, id)
}

// swapArticles simulates corruption by crossing two stored articles.
func (p *fakePool) swapArticles(a, b string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.articles[a], p.articles[b] = p.articles[b], p.articles[a]
}
