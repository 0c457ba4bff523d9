package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// Domain separation keys for keyed hashing: segment hashes and file hashes
// must not collide even over identical bytes. The byte values are the ASCII
// domain name zero-padded to 32 bytes so they are readable in hex dumps.
var (
	segmentDomainKey = [32]byte{
		'u', 's', 'e', 'n', 'e', 't', 's', 'y', 'n', 'c', '.',
		's', 'e', 'g', 'm', 'e', 'n', 't',
	}
	fileDomainKey = [32]byte{
		'u', 's', 'e', 'n', 'e', 't', 's', 'y', 'n', 'c', '.',
		'f', 'i', 'l', 'e',
	}
)

// HashSegment computes the segment-domain digest of data. Used both for
// segment ids (over post-transform bytes) and plaintext checksums.
func HashSegment(data []byte) Hash {
	return keyedHash(segmentDomainKey, data)
}

// HashFile computes the file-domain digest over a file's full original
// byte stream. Verified after reassembly, independently of any one
// segment's correctness, to catch ordering mistakes.
func HashFile(data []byte) Hash {
	return keyedHash(fileDomainKey, data)
}

// FormatHash returns the canonical hex form used in metadata and logs.
func FormatHash(h Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != 32 {
		return h, fmt.Errorf("hash is %d bytes, want 32", len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}

func keyedHash(key [32]byte, data []byte) Hash {
	// NewKeyed only fails for a wrong key length, which the fixed-size
	// array rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
