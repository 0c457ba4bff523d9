package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError_TransferError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"transient", NewTransientError(errors.New("connection refused")), KindTransient},
		{"integrity", NewIntegrityError(errors.New("checksum mismatch")), KindIntegrity},
		{"exhausted", NewExhaustedError(errors.New("all servers down")), KindExhausted},
		{"wrapped transient", fmt.Errorf("post failed: %w", NewTransientError(errors.New("timeout"))), KindTransient},
		{"wrapped integrity", fmt.Errorf("decode: %w", NewIntegrityError(ErrIntegrity)), KindIntegrity},
		{"bare integrity sentinel", fmt.Errorf("segment: %w", ErrIntegrity), KindIntegrity},
		{"unclassified defaults to transient", errors.New("something odd"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(NewTransientError(errors.New("x"))) {
		t.Errorf("transient must not be permanent")
	}
	if !IsPermanent(NewIntegrityError(errors.New("x"))) {
		t.Errorf("integrity must be permanent")
	}
	if !IsPermanent(NewExhaustedError(errors.New("x"))) {
		t.Errorf("exhausted must be permanent")
	}
}

func TestTransferError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := NewTransientError(cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause through TransferError")
	}
}
