package chunker

import (
	"bytes"
	"fmt"

	"github.com/arloliu/go-instrument/internal/queue"
	"github.com/arloliu/go-instrument/logger"
)

// Buffer bounds.
const (
	DefaultMaxBufferSize = 64 * 1024
	MinMaxBufferSize     = 64
	MaxMaxBufferSize     = 16 * 1024 * 1024
)

// Stats holds cumulative Chunker counters.
type Stats struct {
	// Frames is the number of frames extracted.
	Frames uint64
	// NoiseBytes is the number of bytes discarded between frames.
	NoiseBytes uint64
	// FlushedBytes is the number of bytes dropped through Flush.
	FlushedBytes uint64
	// Stalls is the number of times Feed reported a stalled frame.
	Stalls uint64
}

// Chunker rebuilds frames from a fragmented byte stream.
//
// A Chunker is owned by a single receive path and is not goroutine-safe.
type Chunker struct {
	matchers []Matcher
	maxSize  int
	logger   logger.Logger

	buf    []byte
	frames *queue.SliceQueue[*Frame]
	seq    uint64
	stats  Stats
}

// Option is a functional option for configuring a Chunker.
type Option interface {
	apply(*Chunker) error
}

type optFunc func(*Chunker) error

func (f optFunc) apply(c *Chunker) error { return f(c) }

// WithMaxBufferSize sets the number of unconsumed bytes the Chunker may hold
// before Feed reports a stalled frame.
func WithMaxBufferSize(n int) Option {
	return optFunc(func(c *Chunker) error {
		if n < MinMaxBufferSize || n > MaxMaxBufferSize {
			return fmt.Errorf("chunker: max buffer size %d out of range [%d, %d]", n, MinMaxBufferSize, MaxMaxBufferSize)
		}
		c.maxSize = n

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(c *Chunker) error {
		if l != nil {
			c.logger = l
		}

		return nil
	})
}

// New creates a Chunker applying matchers in the given priority order; the
// first matcher has the highest priority.
func New(matchers []Matcher, opts ...Option) (*Chunker, error) {
	if len(matchers) == 0 {
		return nil, ErrNoMatchers
	}

	for i, m := range matchers {
		if m == nil {
			return nil, fmt.Errorf("chunker: matcher %d is nil", i)
		}
	}

	c := &Chunker{
		matchers: append([]Matcher(nil), matchers...),
		maxSize:  DefaultMaxBufferSize,
		logger:   logger.GetLogger(),
		frames:   queue.NewSliceQueue[*Frame](8),
	}

	for _, opt := range opts {
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Feed appends data to the buffer and extracts every complete frame.
//
// It returns a *StalledFrameError when the unconsumed bytes exceed the
// configured bound afterwards. Frames extracted by the same call stay queued.
func (c *Chunker) Feed(data []byte) error {
	c.buf = append(c.buf, data...)
	c.extract()

	if len(c.buf) > c.maxSize {
		c.stats.Stalls++
		c.logger.Warn("chunker: stalled frame", "buffered", len(c.buf), "limit", c.maxSize)

		return &StalledFrameError{Buffered: len(c.buf), Limit: c.maxSize}
	}

	return nil
}

// NextFrame returns the oldest unconsumed frame.
func (c *Chunker) NextFrame() (*Frame, bool) {
	return c.frames.Dequeue()
}

// Pending returns the number of extracted frames not yet consumed.
func (c *Chunker) Pending() int {
	return c.frames.Length()
}

// Buffered returns a copy of the bytes not yet attributed to a frame.
func (c *Chunker) Buffered() []byte {
	return bytes.Clone(c.buf)
}

// Flush drops and returns the bytes not yet attributed to a frame.
// Queued frames are kept.
func (c *Chunker) Flush() []byte {
	dropped := c.buf
	c.buf = nil
	c.stats.FlushedBytes += uint64(len(dropped))

	if len(dropped) > 0 {
		c.logger.Debug("chunker: flushed buffer", "bytes", len(dropped))
	}

	return dropped
}

// Reset drops buffered bytes and queued frames. Counters and the sequence
// number are kept.
func (c *Chunker) Reset() {
	c.buf = nil
	c.frames.Reset()
}

// Stats returns a copy of the cumulative counters.
func (c *Chunker) Stats() Stats {
	return c.stats
}

func (c *Chunker) extract() {
	for len(c.buf) > 0 {
		winner, start, end := c.selectFrame()
		if winner < 0 {
			return
		}

		if start > 0 {
			c.stats.NoiseBytes += uint64(start)
			c.logger.Debug("chunker: discard noise", "bytes", start, "before", c.matchers[winner].Kind())
		}

		frame := &Frame{
			Kind: c.matchers[winner].Kind(),
			Raw:  bytes.Clone(c.buf[start:end]),
			Seq:  c.seq,
		}
		c.seq++
		c.stats.Frames++
		c.frames.Enqueue(frame)

		c.logger.Debug("chunker: frame extracted", "kind", frame.Kind, "seq", frame.Seq, "len", len(frame.Raw))

		c.buf = c.buf[:copy(c.buf, c.buf[end:])]
	}
}

// selectFrame returns the index and span of the frame to extract next, or -1
// when nothing may be extracted yet.
func (c *Chunker) selectFrame() (int, int, int) {
	winner, wStart, wEnd := -1, 0, 0
	complete := make([]bool, len(c.matchers))

	for i, m := range c.matchers {
		s, e, ok := m.Find(c.buf)
		if !ok || s < 0 || e <= s || e > len(c.buf) {
			continue
		}
		complete[i] = true

		if winner < 0 || s < wStart {
			winner, wStart, wEnd = i, s, e
		}
	}

	if winner < 0 {
		return -1, 0, 0
	}

	for j := 0; j < winner; j++ {
		if complete[j] {
			continue
		}

		if p := c.matchers[j].Pending(c.buf); p >= 0 && p < wStart {
			return -1, 0, 0
		}
	}

	return winner, wStart, wEnd
}
