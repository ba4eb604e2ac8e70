package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrStalledFrame indicates that the buffer exceeded its bound without
	// completing any frame.
	ErrStalledFrame = errors.New("chunker: stalled frame")

	// ErrNoMatchers indicates that a Chunker was created without matchers.
	ErrNoMatchers = errors.New("chunker: no frame matchers")
)

// StalledFrameError reports the buffered size and the configured bound.
type StalledFrameError struct {
	Buffered int
	Limit    int
}

func (e *StalledFrameError) Error() string {
	return fmt.Sprintf("chunker: stalled frame, %d bytes buffered exceeds limit %d", e.Buffered, e.Limit)
}

func (e *StalledFrameError) Unwrap() error {
	return ErrStalledFrame
}
