package record

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-instrument/chunker"
)

var (
	// ErrDecode indicates a frame that was recognized but could not be decoded.
	ErrDecode = errors.New("record: decode error")

	// ErrInvalidRule indicates a malformed decode rule.
	ErrInvalidRule = errors.New("record: invalid rule")
)

// DecodeError reports a dropped frame. Frame keeps the raw bytes for
// diagnostics; it is nil for pair input decoded by a MetadataRule.
type DecodeError struct {
	Kind   chunker.Kind
	Frame  *chunker.Frame
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("record: decode %s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns ErrDecode together with the underlying cause, if any.
func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}

	return []error{ErrDecode}
}

func decodeErr(kind chunker.Kind, frame *chunker.Frame, err error, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Frame: frame, Reason: fmt.Sprintf(format, args...), Err: err}
}
