package codec

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/usenetsync/internal/common"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

func encodeFile(t *testing.T, fileID string, data []byte, segmentSize int, opts EncodeOptions) (*models.FileEntry, map[string][]byte, []*models.Segment) {
	t.Helper()

	entry := &models.FileEntry{
		FileID:      fileID,
		Path:        fileID + ".bin",
		Size:        int64(len(data)),
		ContentHash: FormatHash(HashFile(data)),
	}

	payloads := make(map[string][]byte)
	var segments []*models.Segment
	for i, chunk := range Split(data, segmentSize) {
		seg, payload, err := EncodeSegment(fileID, i, chunk, opts)
		if err != nil {
			t.Fatalf("encode segment %d: %v", i, err)
		}
		entry.SegmentIDs = append(entry.SegmentIDs, seg.SegmentID)
		payloads[seg.SegmentID] = payload
		segments = append(segments, seg)
	}
	return entry, payloads, segments
}

func decodeAll(t *testing.T, segments []*models.Segment, payloads map[string][]byte, key []byte) map[string][]byte {
	t.Helper()
	parts := make(map[string][]byte)
	for _, seg := range segments {
		out, err := DecodeSegment(seg, payloads[seg.SegmentID], key)
		if err != nil {
			t.Fatalf("decode segment %s: %v", seg.SegmentID, err)
		}
		parts[seg.SegmentID] = out
	}
	return parts
}

func TestRoundTrip_AllTransforms(t *testing.T) {
	key := common.GenerateRandByteArray(32)
	data := bytes.Repeat([]byte("file content that compresses rather well "), 40000)

	for _, segmentSize := range []int{1024, 64 * 1024, len(data) + 1} {
		entry, payloads, segments := encodeFile(t, "f1", data, segmentSize,
			EncodeOptions{Compression: CompressionZstd, Key: key})

		parts := decodeAll(t, segments, payloads, key)
		out, err := Reassemble(entry, parts)
		if err != nil {
			t.Fatalf("reassemble (segment size %d): %v", segmentSize, err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("reassembled file differs from original (segment size %d)", segmentSize)
		}
	}
}

func TestRoundTrip_PlainSegments(t *testing.T) {
	data := common.GenerateRandByteArray(10 * 1024)

	entry, payloads, segments := encodeFile(t, "f2", data, 4096, EncodeOptions{})
	for _, seg := range segments {
		if seg.Compressed || seg.Encrypted {
			t.Fatalf("expected plain segment, got %+v", seg)
		}
	}

	out, err := Reassemble(entry, decodeAll(t, segments, payloads, nil))
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("reassembled file differs from original")
	}
}

func TestEncodeSegment_IncompressibleFallsBack(t *testing.T) {
	chunk := common.GenerateRandByteArray(32 * 1024)
	seg, payload, err := EncodeSegment("f3", 0, chunk, EncodeOptions{Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.Compressed {
		t.Errorf("random chunk must not be stored compressed")
	}
	if !bytes.Equal(payload, chunk) {
		t.Errorf("uncompressed unencrypted payload must equal the chunk")
	}
}

func TestDecodeSegment_SingleByteCorruption(t *testing.T) {
	key := common.GenerateRandByteArray(32)
	chunk := bytes.Repeat([]byte("abcd"), 2048)

	seg, payload, err := EncodeSegment("f4", 0, chunk, EncodeOptions{Compression: CompressionZstd, Key: key})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flipping any single byte must surface as an integrity failure, never
	// a silent pass.
	for _, pos := range []int{0, len(payload) / 2, len(payload) - 1} {
		corrupted := append([]byte(nil), payload...)
		corrupted[pos] ^= 0x01
		_, err := DecodeSegment(seg, corrupted, key)
		if err == nil {
			t.Fatalf("corruption at byte %d decoded successfully", pos)
		}
		if common.ClassifyError(err) != common.KindIntegrity {
			t.Fatalf("corruption at byte %d: want integrity error, got %v", pos, err)
		}
	}
}

func TestDecodeSegment_MissingKey(t *testing.T) {
	key := common.GenerateRandByteArray(32)
	seg, payload, err := EncodeSegment("f5", 0, []byte("secret"), EncodeOptions{Key: key})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := DecodeSegment(seg, payload, nil); err == nil {
		t.Fatalf("expected error when decoding encrypted segment without key")
	}
}

func TestReassemble_WrongOrderDetected(t *testing.T) {
	data := common.GenerateRandByteArray(8 * 1024)
	entry, payloads, segments := encodeFile(t, "f6", data, 1024, EncodeOptions{})

	// Swap two segment ids: every segment still verifies individually, but
	// the file-level hash must catch the ordering error.
	entry.SegmentIDs[0], entry.SegmentIDs[1] = entry.SegmentIDs[1], entry.SegmentIDs[0]

	_, err := Reassemble(entry, decodeAll(t, segments, payloads, nil))
	if common.ClassifyError(err) != common.KindIntegrity {
		t.Fatalf("want integrity error for wrong order, got %v", err)
	}
}

func TestReassemble_MissingSegment(t *testing.T) {
	data := common.GenerateRandByteArray(4 * 1024)
	entry, payloads, segments := encodeFile(t, "f7", data, 1024, EncodeOptions{})

	parts := decodeAll(t, segments, payloads, nil)
	delete(parts, entry.SegmentIDs[2])

	if _, err := Reassemble(entry, parts); err == nil {
		t.Fatalf("expected error for missing segment")
	}
}
