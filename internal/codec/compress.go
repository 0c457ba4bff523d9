package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dmitrijs2005/usenetsync/internal/common"
)

// CompressionTag identifies the compression algorithm applied to a segment.
// Stored with segment metadata; the values are wire constants.
type CompressionTag uint8

const (
	// CompressionNone marks uncompressed data, used when the probe says the
	// content is already dense (archives, media, ciphertext).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is block-mode LZ4, a fast option for mixed binary data.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level, the standard choice for
	// text-like content.
	CompressionZstd CompressionTag = 2
)

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a tag from its string form as stored in
// segment metadata.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// Shared zstd coder instances; both are safe for concurrent use and reusing
// them avoids per-call initialization overhead.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with the given algorithm. Returns
// common.ErrIncompressible when the output would not be smaller than the
// input; the caller should fall back to CompressionNone.
func Compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Decompress reverses Compress. rawSize must match the original length
// exactly; a mismatch is reported as an error rather than returning short
// or padded data.
func Decompress(compressed []byte, tag CompressionTag, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("uncompressed segment: size %d does not match expected %d", len(compressed), rawSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, rawSize)
	case CompressionZstd:
		return decompressZstd(compressed, rawSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, bound)
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, common.ErrIncompressible
	}
	return dst[:written], nil
}

func decompressLZ4(compressed []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
	}
	return dst, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, common.ErrIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
	}
	return result, nil
}

// probeSize bounds the prefix sampled by ShouldCompress so the decision
// stays cheap on large segments.
const probeSize = 64 * 1024

// DefaultCompressionThreshold is the ratio below which full compression is
// considered worthwhile.
const DefaultCompressionThreshold = 0.9

// ShouldCompress samples a prefix of data, compresses it with zstd and
// reports whether the sampled ratio (compressed/original) beats threshold.
// This keeps the codec from burning CPU on already-archived or encrypted
// content.
func ShouldCompress(data []byte, threshold float64) bool {
	if len(data) == 0 {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	sample := data
	if len(sample) > probeSize {
		sample = sample[:probeSize]
	}
	compressed := zstdEncoder.EncodeAll(sample, nil)
	ratio := float64(len(compressed)) / float64(len(sample))
	return ratio < threshold
}
