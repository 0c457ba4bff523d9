package codec

// DefaultSegmentSize is a practical NNTP article payload ceiling before
// encoding overhead.
const DefaultSegmentSize = 700 * 1024

// Split cuts data into chunks of segmentSize bytes; the final chunk may be
// shorter. Deterministic: the same input and size always yield the same
// boundaries. Chunks alias the input slice, they are not copies.
func Split(data []byte, segmentSize int) [][]byte {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+segmentSize-1)/segmentSize)
	for off := 0; off < len(data); off += segmentSize {
		end := off + segmentSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}
