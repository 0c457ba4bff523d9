package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transfer failure for the queue state machine.
// The worker loop drives retries off this classification: transient errors
// requeue the item, integrity and exhaustion errors are terminal.
type ErrorKind int

const (
	// KindTransient marks recoverable failures: connection refused,
	// timeouts, a server inside its unhealthy cool-down window.
	KindTransient ErrorKind = iota

	// KindIntegrity marks permanent per-item failures: checksum mismatch,
	// decrypt failure, reassembly hash mismatch. Retrying the same bytes
	// cannot help.
	KindIntegrity

	// KindExhausted marks permanent failures after all options ran out:
	// every server unhealthy, every redundant article id missing.
	KindExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindIntegrity:
		return "integrity"
	case KindExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// TransferError carries an ErrorKind alongside the underlying cause.
type TransferError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable failure.
func NewTransientError(err error) error {
	return &TransferError{Kind: KindTransient, Err: err}
}

// NewIntegrityError wraps err as a permanent integrity failure.
func NewIntegrityError(err error) error {
	return &TransferError{Kind: KindIntegrity, Err: err}
}

// NewExhaustedError wraps err as a permanent exhaustion failure.
func NewExhaustedError(err error) error {
	return &TransferError{Kind: KindExhausted, Err: err}
}

// ClassifyError returns the ErrorKind of err. Errors that are not a
// TransferError default to transient, so an unclassified network hiccup is
// retried rather than silently promoted to a permanent failure.
func ClassifyError(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, ErrIntegrity) {
		return KindIntegrity
	}
	return KindTransient
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	k := ClassifyError(err)
	return k == KindIntegrity || k == KindExhausted
}
