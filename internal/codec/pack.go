package codec

import (
	"encoding/binary"
	"fmt"
)

// Packed payload framing: a 4-byte magic, a uint32 frame count, then for
// each frame a uint32 length prefix followed by the frame bytes. All
// integers big-endian. These are wire constants; changing them breaks
// payloads already posted.
var packMagic = [4]byte{'u', 's', 'p', '1'}

// Pack concatenates several small segments into one article payload with
// length-prefixed framing, so tiny files do not pay per-article protocol
// overhead.
func Pack(frames [][]byte) []byte {
	size := 8
	for _, f := range frames {
		size += 4 + len(f)
	}
	out := make([]byte, 0, size)
	out = append(out, packMagic[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(frames)))
	for _, f := range frames {
		out = binary.BigEndian.AppendUint32(out, uint32(len(f)))
		out = append(out, f...)
	}
	return out
}

// Unpack splits a packed payload back into the original frames in their
// original order. Any truncation or corruption of the framing is an error.
func Unpack(payload []byte) ([][]byte, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("packed payload too short: %d bytes", len(payload))
	}
	if [4]byte(payload[:4]) != packMagic {
		return nil, fmt.Errorf("bad pack magic %q", payload[:4])
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	// Every frame costs at least its 4-byte length prefix; a count the
	// payload cannot hold is corrupt and must not drive the allocation.
	if int64(count) > int64(len(payload)-8)/4 {
		return nil, fmt.Errorf("frame count %d exceeds payload of %d bytes", count, len(payload))
	}
	frames := make([][]byte, 0, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+4 > len(payload) {
			return nil, fmt.Errorf("truncated frame header at frame %d", i)
		}
		n := int(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
		if off+n > len(payload) {
			return nil, fmt.Errorf("truncated frame body at frame %d: need %d bytes, have %d", i, n, len(payload)-off)
		}
		frames = append(frames, payload[off:off+n])
		off += n
	}
	if off != len(payload) {
		return nil, fmt.Errorf("trailing garbage after %d frames: %d bytes", count, len(payload)-off)
	}
	return frames, nil
}
