package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/codec"
	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/filex"
	"github.com/dmitrijs2005/usenetsync/internal/logging"
	"github.com/dmitrijs2005/usenetsync/internal/nntp"
	"github.com/dmitrijs2005/usenetsync/internal/server/config"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// Downloader materializes a folder version under a destination directory.
// Items enqueued from a share pin the share's version; items without a
// share pull the latest version of an own folder.
type Downloader struct {
	index  Index
	shares Shares
	pool   Pool
	logger logging.Logger
	secret []byte
}

// NewDownloader constructs a Downloader from config.
func NewDownloader(index Index, shares Shares, pool Pool, logger logging.Logger, cfg *config.Config) *Downloader {
	return &Downloader{
		index:  index,
		shares: shares,
		pool:   pool,
		logger: logger,
		secret: []byte(cfg.ShareSecretKey),
	}
}

// Process downloads one folder item. A segment whose every article copy is
// dead or corrupt fails its file only; remaining files still download. The
// item fails terminally when any file could not be restored.
func (d *Downloader) Process(ctx context.Context, item *models.TransferItem, progress ProgressFunc) error {
	version := int64(0)
	if item.ShareID != "" {
		share, err := d.shares.GetShare(ctx, item.ShareID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NewExhaustedError(fmt.Errorf("share %s: %w", item.ShareID, err))
			}
			return err
		}
		if !share.IsActive {
			return common.NewExhaustedError(common.ErrShareRevoked)
		}
		version = share.Version
	}

	folder, err := d.index.GetFolder(ctx, item.EntityID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewExhaustedError(fmt.Errorf("folder %s: %w", item.EntityID, err))
		}
		return err
	}
	key := codec.DeriveFolderKey(d.secret, folder.KeySalt)
	defer common.WipeByteArray(key)

	resolved, err := d.index.Resolve(ctx, item.EntityID, version)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewExhaustedError(err)
		}
		return err
	}

	total := resolved.Version.TotalSize
	var done int64
	progress(done, total)

	var failed int
	for _, f := range resolved.Version.Files {
		data, err := d.fetchFile(ctx, f, resolved.Segments[f.FileID], key)
		if err != nil {
			if !common.IsPermanent(err) {
				return err
			}
			d.logger.Error(ctx, "file unrecoverable", "path", f.Path, "error", err)
			failed++
			continue
		}
		if err := filex.WriteFile(item.Destination, f.Path, data); err != nil {
			return err
		}
		done += f.Size
		progress(done, total)
	}

	if failed > 0 {
		return common.NewIntegrityError(
			fmt.Errorf("%d of %d files could not be restored", failed, len(resolved.Version.Files)))
	}
	d.logger.Info(ctx, "download complete",
		"folder_id", item.EntityID, "version", resolved.Version.Version,
		"files", len(resolved.Version.Files), "bytes", done)
	return nil
}

func (d *Downloader) fetchFile(ctx context.Context, entry *models.FileEntry, segs []*models.Segment, key []byte) ([]byte, error) {
	parts := make(map[string][]byte, len(segs))
	for _, seg := range segs {
		part, err := d.fetchSegment(ctx, seg, key)
		if err != nil {
			return nil, err
		}
		parts[seg.SegmentID] = part
	}
	return codec.Reassemble(entry, parts)
}

// fetchSegment tries every article copy of a segment in posting order.
// Missing and corrupt copies fall through to the next one; the segment is
// unrecoverable only when all copies failed.
func (d *Downloader) fetchSegment(ctx context.Context, seg *models.Segment, key []byte) ([]byte, error) {
	if len(seg.ArticleMessageIDs) == 0 {
		return nil, common.NewExhaustedError(fmt.Errorf("segment %s has no articles", seg.SegmentID))
	}

	var lastErr error
	for _, messageID := range seg.ArticleMessageIDs {
		// The receive size is only known after the read, so charge the
		// stored packed size up front and the article overhead afterwards.
		if err := d.pool.Throttle(ctx, int(seg.PackedSize)); err != nil {
			return nil, err
		}
		pc, err := d.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		article, err := pc.Transport().Article(messageID)
		d.pool.Release(pc, err)
		if err != nil {
			if errors.Is(err, common.ErrArticleNotFound) {
				d.logger.Warn(ctx, "article missing, trying alternate",
					"segment_id", seg.SegmentID, "message_id", messageID)
				lastErr = err
				continue
			}
			return nil, common.NewTransientError(err)
		}
		if extra := len(article) - int(seg.PackedSize); extra > 0 {
			if err := d.pool.Throttle(ctx, extra); err != nil {
				return nil, err
			}
		}

		payload, err := nntp.ParseArticle(article)
		if err != nil {
			lastErr = err
			continue
		}
		frames, err := codec.Unpack(payload)
		if err != nil {
			lastErr = err
			continue
		}
		part, err := d.decodeFrame(seg, frames, key)
		if err != nil {
			d.logger.Warn(ctx, "corrupt copy, trying alternate",
				"segment_id", seg.SegmentID, "message_id", messageID, "error", err)
			lastErr = err
			continue
		}
		return part, nil
	}
	return nil, common.NewExhaustedError(
		fmt.Errorf("segment %s: all %d copies failed: %w", seg.SegmentID, len(seg.ArticleMessageIDs), lastErr))
}

// decodeFrame finds the frame belonging to seg inside a packed article and
// decodes it. Most articles carry one frame; small-file batches share one
// article between several segments.
func (d *Downloader) decodeFrame(seg *models.Segment, frames [][]byte, key []byte) ([]byte, error) {
	for _, frame := range frames {
		if codec.FormatHash(codec.HashSegment(frame)) == seg.SegmentID {
			return codec.DecodeSegment(seg, frame, key)
		}
	}
	return nil, common.NewIntegrityError(
		fmt.Errorf("segment %s: no matching frame among %d: %w", seg.SegmentID, len(frames), common.ErrIntegrity))
}
