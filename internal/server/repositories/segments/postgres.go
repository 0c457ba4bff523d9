package segments

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/dbx"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// PostgresRepository implements segment storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add inserts one segment metadata row.
func (r *PostgresRepository) Add(ctx context.Context, seg *models.Segment) error {
	query := `
		INSERT INTO segments (segment_id, file_id, sequence_index, raw_size, packed_size, compressed, compression_alg, encrypted, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	res, err := r.db.ExecContext(ctx, query,
		seg.SegmentID, seg.FileID, seg.SequenceIndex, seg.RawSize, seg.PackedSize,
		seg.Compressed, seg.CompressionAlg, seg.Encrypted, seg.Checksum)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// AddArticle records one posted article for a segment.
func (r *PostgresRepository) AddArticle(ctx context.Context, fileID, segmentID, messageID, serverID string) error {
	query := `
		INSERT INTO segment_articles (message_id, segment_id, file_id, server_id)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, messageID, segmentID, fileID, serverID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ForFile returns the segments of a file ordered by sequence index, each
// with its article message ids in posting order.
func (r *PostgresRepository) ForFile(ctx context.Context, fileID string) ([]*models.Segment, error) {
	query := `SELECT segment_id, file_id, sequence_index, raw_size, packed_size, compressed, compression_alg, encrypted, checksum
		FROM segments WHERE file_id=$1 ORDER BY sequence_index`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select segments: %w", err)
	}
	defer rows.Close()

	var result []*models.Segment
	for rows.Next() {
		var item models.Segment
		if err := rows.Scan(&item.SegmentID, &item.FileID, &item.SequenceIndex,
			&item.RawSize, &item.PackedSize, &item.Compressed, &item.CompressionAlg,
			&item.Encrypted, &item.Checksum); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	articles, err := r.articlesForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	for _, seg := range result {
		seg.ArticleMessageIDs = articles[seg.SegmentID]
	}
	return result, nil
}

func (r *PostgresRepository) articlesForFile(ctx context.Context, fileID string) (map[string][]string, error) {
	query := `SELECT segment_id, message_id FROM segment_articles WHERE file_id=$1 ORDER BY posted_at`

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var segmentID, messageID string
		if err := rows.Scan(&segmentID, &messageID); err != nil {
			return nil, err
		}
		result[segmentID] = append(result[segmentID], messageID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
