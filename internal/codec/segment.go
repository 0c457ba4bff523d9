package codec

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

// EncodeOptions controls the transforms EncodeSegment applies to a chunk.
type EncodeOptions struct {
	// Compression selects the algorithm tried for the chunk; None disables
	// compression entirely. Incompressible chunks fall back to None.
	Compression CompressionTag
	// Key enables AES-GCM encryption when non-nil.
	Key []byte
}

// EncodeSegment transforms one raw chunk into its transport payload and the
// Segment metadata describing it: compress, then encrypt, then hash. The
// returned segment's SegmentID is the hash of the payload bytes as they go
// onto the wire, Checksum the hash of the original chunk.
func EncodeSegment(fileID string, sequenceIndex int, chunk []byte, opts EncodeOptions) (*models.Segment, []byte, error) {
	payload := chunk
	alg := CompressionNone

	if opts.Compression != CompressionNone {
		out, err := Compress(chunk, opts.Compression)
		switch {
		case err == nil:
			payload = out
			alg = opts.Compression
		case errors.Is(err, common.ErrIncompressible):
			// keep the chunk as-is
		default:
			return nil, nil, fmt.Errorf("compress segment %d of %s: %w", sequenceIndex, fileID, err)
		}
	}

	encrypted := false
	if opts.Key != nil {
		out, err := Encrypt(payload, opts.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("encrypt segment %d of %s: %w", sequenceIndex, fileID, err)
		}
		payload = out
		encrypted = true
	}

	seg := &models.Segment{
		SegmentID:     FormatHash(HashSegment(payload)),
		FileID:        fileID,
		SequenceIndex: sequenceIndex,
		RawSize:       int64(len(chunk)),
		PackedSize:    int64(len(payload)),
		Compressed:    alg != CompressionNone,
		Encrypted:     encrypted,
		Checksum:      FormatHash(HashSegment(chunk)),
	}
	if seg.Compressed {
		seg.CompressionAlg = alg.String()
	}
	return seg, payload, nil
}

// DecodeSegment inverts EncodeSegment: verify the stored segment id against
// the payload, decrypt, decompress, verify the plaintext checksum. Every
// mismatch fails closed with an integrity error.
func DecodeSegment(seg *models.Segment, payload []byte, key []byte) ([]byte, error) {
	if got := FormatHash(HashSegment(payload)); got != seg.SegmentID {
		return nil, common.NewIntegrityError(
			fmt.Errorf("segment %s: payload hash %s does not match stored id: %w", seg.SegmentID, got, common.ErrIntegrity))
	}

	data := payload
	if seg.Encrypted {
		if key == nil {
			return nil, fmt.Errorf("segment %s is encrypted but no key was provided", seg.SegmentID)
		}
		out, err := Decrypt(data, key)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.SegmentID, err)
		}
		data = out
	}

	if seg.Compressed {
		tag, err := ParseCompressionTag(seg.CompressionAlg)
		if err != nil {
			return nil, common.NewIntegrityError(fmt.Errorf("segment %s: %w", seg.SegmentID, err))
		}
		out, err := Decompress(data, tag, int(seg.RawSize))
		if err != nil {
			return nil, common.NewIntegrityError(fmt.Errorf("segment %s: %w", seg.SegmentID, err))
		}
		data = out
	}

	if got := FormatHash(HashSegment(data)); got != seg.Checksum {
		return nil, common.NewIntegrityError(
			fmt.Errorf("segment %s: plaintext checksum mismatch: %w", seg.SegmentID, common.ErrIntegrity))
	}
	if int64(len(data)) != seg.RawSize {
		return nil, common.NewIntegrityError(
			fmt.Errorf("segment %s: decoded %d bytes, expected %d", seg.SegmentID, len(data), seg.RawSize))
	}
	return data, nil
}

// Reassemble concatenates decoded segment plaintexts in sequence order and
// verifies the file-level content hash. A mismatch is fatal for the file
// even when every segment verified individually, since it indicates wrong
// ordering or a missing piece.
func Reassemble(entry *models.FileEntry, parts map[string][]byte) ([]byte, error) {
	out := make([]byte, 0, entry.Size)
	for _, segID := range entry.SegmentIDs {
		part, ok := parts[segID]
		if !ok {
			return nil, fmt.Errorf("file %s: missing segment %s", entry.Path, segID)
		}
		out = append(out, part...)
	}
	if got := FormatHash(HashFile(out)); got != entry.ContentHash {
		return nil, common.NewIntegrityError(
			fmt.Errorf("file %s: content hash mismatch after reassembly: %w", entry.Path, common.ErrIntegrity))
	}
	return out, nil
}
