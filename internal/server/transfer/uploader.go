package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/codec"
	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/filex"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/nntp"
	"github.com/dmitrijs2005/usenetsync/internal/server/config"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
	"github.com/dmitrijs2005/usenetsync/internal/server/services"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Uploader turns a folder queue item into posted articles and a new
// published version. Unchanged files keep their file id and segments from
// the previous version; only added and modified files are re-posted.
type Uploader struct {
	index       Index
	pool        Pool
	logger      logging.Logger
	newsgroup   string
	segmentSize int
	threshold   float64
	secret      []byte
}

// NewUploader constructs an Uploader from config.
func NewUploader(index Index, pool Pool, logger logging.Logger, cfg *config.Config) *Uploader {
	return &Uploader{
		index:       index,
		pool:        pool,
		logger:      logger,
		newsgroup:   cfg.Newsgroup,
		segmentSize: cfg.SegmentSizeBytes,
		threshold:   cfg.CompressionThresholdRatio,
		secret:      []byte(cfg.ShareSecretKey),
	}
}

// smallFile is an encoded single-segment file waiting to be batched into a
// packed article with other small files from the same item.
type smallFile struct {
	entry *models.FileEntry
	seg   *models.Segment
	frame []byte
}

// Process uploads one folder item: scan, diff against the latest version,
// post changed files segment by segment, publish the next version. Small
// files are batched into shared packed articles at the end.
func (u *Uploader) Process(ctx context.Context, item *models.TransferItem, progress ProgressFunc) error {
	folder, err := u.index.GetFolder(ctx, item.EntityID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewExhaustedError(fmt.Errorf("folder %s: %w", item.EntityID, err))
		}
		return err
	}
	key := codec.DeriveFolderKey(u.secret, folder.KeySalt)
	defer common.WipeByteArray(key)

	listing, err := filex.ScanFolder(folder.RootPath)
	if err != nil {
		return err
	}

	previous := map[string]*models.FileEntry{}
	if resolved, err := u.index.Resolve(ctx, item.EntityID, 0); err == nil {
		for _, f := range resolved.Version.Files {
			previous[f.Path] = f
		}
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	var total int64
	for _, f := range listing {
		if prev, ok := previous[f.Path]; !ok || prev.ContentHash != f.ContentHash {
			total += f.Size
		}
	}
	var done int64
	progress(done, total)
	tick := func(n int64) {
		done += n
		progress(done, total)
	}

	entries := make([]*models.FileEntry, 0, len(listing))
	var batch []*smallFile
	for _, f := range listing {
		if prev, ok := previous[f.Path]; ok && prev.ContentHash == f.ContentHash {
			entries = append(entries, prev)
			continue
		}
		f.FileID = uuid.NewString()
		if ChooseStrategy(f.Path, f.Size, u.segmentSize) == models.StrategySimple {
			sf, err := u.encodeSmall(folder, f, key)
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Path, err)
			}
			batch = append(batch, sf)
		} else if err := u.uploadFile(ctx, folder, f, key, tick); err != nil {
			return fmt.Errorf("upload %s: %w", f.Path, err)
		}
		entries = append(entries, f)
	}
	if err := u.flushSmall(ctx, batch, tick); err != nil {
		return err
	}

	version, err := u.index.PublishVersion(ctx, item.EntityID, entries)
	if err != nil {
		return err
	}
	u.logger.Info(ctx, "upload complete",
		"folder_id", item.EntityID, "version", version, "files", len(entries), "bytes", done)
	return nil
}

func (u *Uploader) uploadFile(ctx context.Context, folder *models.Folder, entry *models.FileEntry, key []byte, tick func(int64)) error {
	data, err := filex.ReadFile(folder.RootPath, entry.Path)
	if err != nil {
		return err
	}

	strategy := ChooseStrategy(entry.Path, entry.Size, u.segmentSize)
	chunks := codec.Split(data, u.segmentSize)
	entry.SegmentIDs = make([]string, 0, len(chunks))

	u.logger.Debug(ctx, "uploading file",
		"path", entry.Path, "strategy", string(strategy), "segments", len(chunks))

	for i, chunk := range chunks {
		opts := codec.EncodeOptions{Key: key}
		switch strategy {
		case models.StrategyCompressed:
			opts.Compression = codec.CompressionZstd
		case models.StrategyOptimized:
			if codec.ShouldCompress(chunk, u.threshold) {
				opts.Compression = codec.CompressionZstd
			}
		}

		seg, payload, err := codec.EncodeSegment(entry.FileID, i, chunk, opts)
		if err != nil {
			return err
		}

		subject := fmt.Sprintf("%s (%d/%d)", entry.Path, i+1, len(chunks))
		first, err := u.postArticle(ctx, subject, [][]byte{payload})
		if err != nil {
			return err
		}
		postings := []services.Posting{first}

		if strategy == models.StrategyRedundant {
			// The second copy goes to a different server. Losing it is not
			// fatal while the first copy stands.
			second, err := u.postArticle(ctx, subject, [][]byte{payload}, first.ServerID)
			if err != nil {
				u.logger.Warn(ctx, "redundant copy failed",
					"path", entry.Path, "segment", i, "error", err)
			} else {
				postings = append(postings, second)
			}
		}

		if err := u.index.RecordSegment(ctx, seg, postings); err != nil {
			return err
		}
		entry.SegmentIDs = append(entry.SegmentIDs, seg.SegmentID)
		tick(int64(len(chunk)))
	}
	return nil
}

// encodeSmall encodes a file that fits one segment, deferring the posting
// to flushSmall so several small files can share an article.
func (u *Uploader) encodeSmall(folder *models.Folder, entry *models.FileEntry, key []byte) (*smallFile, error) {
	data, err := filex.ReadFile(folder.RootPath, entry.Path)
	if err != nil {
		return nil, err
	}
	seg, frame, err := codec.EncodeSegment(entry.FileID, 0, data, codec.EncodeOptions{Key: key})
	if err != nil {
		return nil, err
	}
	entry.SegmentIDs = []string{seg.SegmentID}
	return &smallFile{entry: entry, seg: seg, frame: frame}, nil
}

// flushSmall posts batched small files as packed articles, greedily filling
// each article up to the segment size. Every segment in a group records the
// same message id.
func (u *Uploader) flushSmall(ctx context.Context, batch []*smallFile, tick func(int64)) error {
	for start := 0; start < len(batch); {
		end := start + 1
		size := len(batch[start].frame)
		for end < len(batch) && size+len(batch[end].frame) <= u.segmentSize {
			size += len(batch[end].frame)
			end++
		}
		group := batch[start:end]

		frames := make([][]byte, len(group))
		for i, sf := range group {
			frames[i] = sf.frame
		}
		posting, err := u.postArticle(ctx, fmt.Sprintf("packed (%d files)", len(group)), frames)
		if err != nil {
			return fmt.Errorf("upload %s: %w", group[0].entry.Path, err)
		}
		for _, sf := range group {
			if err := u.index.RecordSegment(ctx, sf.seg, []services.Posting{posting}); err != nil {
				return err
			}
			tick(sf.seg.RawSize)
		}
		u.logger.Debug(ctx, "posted packed article", "files", len(group), "bytes", size)
		start = end
	}
	return nil
}

// postArticle packs the frames into one article and posts it, retrying
// transient post failures with a short exponential backoff inside the same
// queue attempt.
func (u *Uploader) postArticle(ctx context.Context, subject string, frames [][]byte, exclude ...string) (services.Posting, error) {
	var posting services.Posting
	payload := codec.Pack(frames)

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := nntp.NewMessageID()
		if err != nil {
			return err
		}
		article := nntp.BuildArticle(id, u.newsgroup, subject, payload)

		if err := u.pool.Throttle(ctx, len(article)); err != nil {
			return err
		}
		pc, err := u.pool.Acquire(ctx, exclude...)
		if err != nil {
			// Pool exhaustion is permanent; backing off cannot help.
			return err
		}
		postErr := pc.Transport().Post(article)
		u.pool.Release(pc, postErr)
		if postErr != nil {
			return retry.RetryableError(postErr)
		}
		posting = services.Posting{MessageID: id, ServerID: pc.Server().ServerID}
		return nil
	})
	return posting, err
}
