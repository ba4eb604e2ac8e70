package chunker

import "fmt"

// Kind names a frame type, e.g. "status" or "sample".
type Kind string

// Frame is a contiguous byte span recognized as one complete logical message.
// It is immutable once produced.
type Frame struct {
	// Kind is the kind reported by the Matcher that recognized the frame.
	Kind Kind
	// Raw holds the frame bytes exactly as received.
	Raw []byte
	// Seq is the arrival-order sequence number, starting at zero per Chunker.
	Seq uint64
}

// Text returns the frame bytes as a string.
func (f *Frame) Text() string {
	return string(f.Raw)
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame{kind=%s seq=%d len=%d}", f.Kind, f.Seq, len(f.Raw))
}
