package codec

import "testing"

func TestHashDomainSeparation(t *testing.T) {
	data := []byte("identical input")
	if HashSegment(data) == HashFile(data) {
		t.Errorf("segment and file domains must not produce equal hashes")
	}
}

func TestFormatParseHash_RoundTrip(t *testing.T) {
	h := HashSegment([]byte("abc"))
	parsed, err := ParseHash(FormatHash(h))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip mismatch")
	}
}

func TestParseHash_Invalid(t *testing.T) {
	if _, err := ParseHash("zz"); err == nil {
		t.Errorf("expected error for non-hex input")
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Errorf("expected error for wrong length")
	}
}
