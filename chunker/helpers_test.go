package chunker

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	kindStatus Kind = "status"
	kindEvents Kind = "events"
	kindSample Kind = "sample"
	kindHex    Kind = "hex"
	kindBinary Kind = "binary"
)

// newTestMatchers returns the matcher set used by most tests: SBE54-style XML
// records, an SBE16-style hex line and a synced binary record.
func newTestMatchers(t *testing.T) []Matcher {
	t.Helper()

	hex, err := NewRegexMatcher(kindHex, `#[0-9A-F]+\r\n`, `#[0-9A-F]*\r?$`)
	require.NoError(t, err)

	return []Matcher{
		NewDelimitedMatcher(kindStatus, "<StatusData ", "</StatusData>"),
		NewDelimitedMatcher(kindEvents, "<EventSummary numEvents=", "</EventList>"),
		NewDelimitedMatcher(kindSample, "<Sample Num=", "</Sample>"),
		hex,
		&FixedLengthMatcher{
			FrameKind: kindBinary,
			Sync:      []byte{0xAA, 0x55},
			Length:    8,
			Checksum:  SumChecksum(),
		},
	}
}

// newTestChunker creates a Chunker over the default test matchers.
func newTestChunker(t *testing.T, opts ...Option) *Chunker {
	t.Helper()

	c, err := New(newTestMatchers(t), opts...)
	require.NoError(t, err)

	return c
}

// binaryRecord builds an 8-byte synced record with a valid sum checksum.
func binaryRecord(payload ...byte) []byte {
	rec := make([]byte, 8)
	rec[0], rec[1] = 0xAA, 0x55
	copy(rec[2:7], payload)

	var sum byte
	for _, b := range rec[:7] {
		sum += b
	}
	rec[7] = sum

	return rec
}

// drainFrames consumes every queued frame.
func drainFrames(c *Chunker) []*Frame {
	var frames []*Frame
	for {
		f, ok := c.NextFrame()
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}

// feedSplit feeds data in random contiguous pieces of 1 to maxPiece bytes.
func feedSplit(t *testing.T, c *Chunker, rng *rand.Rand, data []byte, maxPiece int) {
	t.Helper()

	for len(data) > 0 {
		n := 1 + rng.IntN(maxPiece)
		if n > len(data) {
			n = len(data)
		}
		require.NoError(t, c.Feed(data[:n]))
		data = data[n:]
	}
}

func frameBytes(frames []*Frame) [][]byte {
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Raw)
	}

	return out
}
