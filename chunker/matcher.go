package chunker

import (
	"bytes"
	"fmt"
	"regexp"
)

// Matcher recognizes one frame kind within a byte buffer.
//
// Implementations must be pure functions of the buffer: the Chunker calls them
// repeatedly over the same bytes as the buffer grows.
type Matcher interface {
	// Kind returns the frame kind this matcher produces.
	Kind() Kind
	// Find returns the span [start, end) of the leftmost complete frame in buf.
	Find(buf []byte) (start int, end int, ok bool)
	// Pending returns the offset of the earliest frame of this kind that has
	// started in buf, complete or not, or -1 if none has.
	Pending(buf []byte) int
}

// DelimitedMatcher recognizes frames that open with Start and close with End,
// such as XML records ("<StatusData" … "</StatusData>").
//
// When several Start markers precede the first End, the frame begins at the
// last of them; earlier markers belong to truncated frames and become noise.
type DelimitedMatcher struct {
	FrameKind Kind
	Start     []byte
	End       []byte
}

var _ Matcher = (*DelimitedMatcher)(nil)

// NewDelimitedMatcher creates a DelimitedMatcher from string markers.
func NewDelimitedMatcher(kind Kind, start string, end string) *DelimitedMatcher {
	return &DelimitedMatcher{FrameKind: kind, Start: []byte(start), End: []byte(end)}
}

func (m *DelimitedMatcher) Kind() Kind { return m.FrameKind }

func (m *DelimitedMatcher) Find(buf []byte) (int, int, bool) {
	first := bytes.Index(buf, m.Start)
	if first < 0 {
		return 0, 0, false
	}

	rel := bytes.Index(buf[first+len(m.Start):], m.End)
	if rel < 0 {
		return 0, 0, false
	}

	endMarker := first + len(m.Start) + rel
	start := first + bytes.LastIndex(buf[first:endMarker], m.Start)

	return start, endMarker + len(m.End), true
}

func (m *DelimitedMatcher) Pending(buf []byte) int {
	if i := bytes.Index(buf, m.Start); i >= 0 {
		return i
	}

	return tailPrefix(buf, m.Start)
}

// RegexMatcher recognizes frames with a regular expression.
//
// Pattern must end in an explicit terminator (a delimiter or a fixed
// repetition count); a pattern whose tail is open-ended could report a frame
// that is still growing. StartHint is optional: when set, its leftmost match
// marks where a frame of this kind has begun.
type RegexMatcher struct {
	FrameKind Kind
	Pattern   *regexp.Regexp
	StartHint *regexp.Regexp
}

var _ Matcher = (*RegexMatcher)(nil)

// NewRegexMatcher compiles pattern and the optional startHint.
func NewRegexMatcher(kind Kind, pattern string, startHint string) (*RegexMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("chunker: compile pattern for %s: %w", kind, err)
	}

	m := &RegexMatcher{FrameKind: kind, Pattern: re}
	if startHint != "" {
		m.StartHint, err = regexp.Compile(startHint)
		if err != nil {
			return nil, fmt.Errorf("chunker: compile start hint for %s: %w", kind, err)
		}
	}

	return m, nil
}

func (m *RegexMatcher) Kind() Kind { return m.FrameKind }

func (m *RegexMatcher) Find(buf []byte) (int, int, bool) {
	loc := m.Pattern.FindIndex(buf)
	if loc == nil || loc[1] <= loc[0] {
		return 0, 0, false
	}

	return loc[0], loc[1], true
}

func (m *RegexMatcher) Pending(buf []byte) int {
	if m.StartHint == nil {
		return -1
	}

	if loc := m.StartHint.FindIndex(buf); loc != nil {
		return loc[0]
	}

	return -1
}

// ChecksumFunc validates a candidate fixed-length frame.
type ChecksumFunc func(frame []byte) bool

// FixedLengthMatcher recognizes binary records of a fixed byte length.
//
// With a Sync prefix, candidates start at each Sync occurrence; without one,
// records are taken back to back from the buffer head. A Checksum failure
// moves the search one byte past the rejected candidate.
type FixedLengthMatcher struct {
	FrameKind Kind
	Sync      []byte
	Length    int
	Checksum  ChecksumFunc
}

var _ Matcher = (*FixedLengthMatcher)(nil)

func (m *FixedLengthMatcher) Kind() Kind { return m.FrameKind }

func (m *FixedLengthMatcher) Find(buf []byte) (int, int, bool) {
	if m.Length <= 0 {
		return 0, 0, false
	}

	for from := 0; from+m.Length <= len(buf); from++ {
		start := from
		if len(m.Sync) > 0 {
			rel := bytes.Index(buf[from:], m.Sync)
			if rel < 0 {
				return 0, 0, false
			}
			start = from + rel
			from = start
		}

		end := start + m.Length
		if end > len(buf) {
			return 0, 0, false
		}

		if m.Checksum == nil || m.Checksum(buf[start:end]) {
			return start, end, true
		}
	}

	return 0, 0, false
}

func (m *FixedLengthMatcher) Pending(buf []byte) int {
	if len(m.Sync) == 0 {
		if len(buf) > 0 {
			return 0
		}

		return -1
	}

	if i := bytes.Index(buf, m.Sync); i >= 0 {
		return i
	}

	return tailPrefix(buf, m.Sync)
}

// SumChecksum returns a ChecksumFunc that validates the last byte of a frame
// as the 8-bit sum of all preceding bytes.
func SumChecksum() ChecksumFunc {
	return func(frame []byte) bool {
		if len(frame) < 2 {
			return false
		}

		var sum byte
		for _, b := range frame[:len(frame)-1] {
			sum += b
		}

		return sum == frame[len(frame)-1]
	}
}

// tailPrefix returns the offset of the longest buffer suffix that is a proper
// prefix of marker, or -1.
func tailPrefix(buf []byte, marker []byte) int {
	if len(marker) == 0 {
		return -1
	}

	from := len(buf) - len(marker) + 1
	if from < 0 {
		from = 0
	}

	for i := from; i < len(buf); i++ {
		if bytes.HasPrefix(marker, buf[i:]) {
			return i
		}
	}

	return -1
}
