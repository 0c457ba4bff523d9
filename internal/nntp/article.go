package nntp

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/usenetsync/internal/common"
)

// articles carry binary segment payloads base64-encoded, wrapped to 76
// columns so any 7-bit transit path leaves them intact.
const base64LineLength = 76

// NewMessageID generates a unique article message id. Generated client-side
// before POST so the id can be recorded regardless of server response
// details.
func NewMessageID() (string, error) {
	s, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<%s@usenetsync>", s), nil
}

// BuildArticle renders a complete article: RFC 5536 style headers, a blank
// line, then the base64 body.
func BuildArticle(messageID, newsgroup, subject string, payload []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: poster@usenetsync\r\n")
	fmt.Fprintf(&b, "Newsgroups: %s\r\n", newsgroup)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString(payload)
	for len(encoded) > 0 {
		n := base64LineLength
		if n > len(encoded) {
			n = len(encoded)
		}
		b.WriteString(encoded[:n])
		b.WriteString("\r\n")
		encoded = encoded[n:]
	}
	return b.Bytes()
}

// ParseArticle extracts the binary payload from an article produced by
// BuildArticle: skip headers up to the first blank line, base64-decode the
// rest. Unknown extra headers are tolerated.
func ParseArticle(article []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(article))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	inBody := false
	var body strings.Builder
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !inBody {
			if line == "" {
				inBody = true
			}
			continue
		}
		body.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning article: %w", err)
	}
	if !inBody {
		return nil, fmt.Errorf("article has no body")
	}

	payload, err := base64.StdEncoding.DecodeString(body.String())
	if err != nil {
		return nil, fmt.Errorf("decoding article body: %w", err)
	}
	return payload, nil
}
