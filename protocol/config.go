package protocol

import (
	"fmt"
	"time"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/record"
)

// Default driver timing.
const (
	DefaultCommandTimeout = 10 * time.Second // wait for the terminal prompt
	DefaultWakeInterval   = time.Second      // silence before wake-and-resend
	DefaultPollTimeout    = 50 * time.Millisecond

	DefaultEventQueueSize = 16
)

// Timing range limits.
const (
	MinCommandTimeout = 10 * time.Millisecond
	MaxCommandTimeout = 10 * time.Minute

	MinWakeInterval = 5 * time.Millisecond
	MaxWakeInterval = time.Minute

	MinPollTimeout = time.Millisecond
	MaxPollTimeout = 5 * time.Second

	MaxEventQueueSize = 4096
)

// SampleHandler receives every decoded sample with its emission time.
type SampleHandler func(sample *record.Sample, ts time.Time)

// StateChangeHandler is invoked after every transition.
//
// Note: the handler is invoked in blocking mode from the driver's goroutine.
type StateChangeHandler func(prev State, next State)

// ErrorHandler receives errors that do not abort the stream: decode errors,
// stalled frames and failures of posted events.
type ErrorHandler func(err error)

// DirectAccessHandler receives raw device bytes while in direct access.
type DirectAccessHandler func(data []byte)

type config struct {
	commandTimeout time.Duration
	wakeInterval   time.Duration
	pollTimeout    time.Duration
	eventQueueSize int
	flushOnStall   bool
	chunkerOpts    []chunker.Option

	id     string
	logger logger.Logger

	sampleHandlers []SampleHandler
	stateHandlers  []StateChangeHandler
	errorHandlers  []ErrorHandler
	daHandler      DirectAccessHandler
}

func defaultConfig() *config {
	return &config{
		commandTimeout: DefaultCommandTimeout,
		wakeInterval:   DefaultWakeInterval,
		pollTimeout:    DefaultPollTimeout,
		eventQueueSize: DefaultEventQueueSize,
		flushOnStall:   true,
		logger:         logger.GetLogger(),
	}
}

// Option is a functional option for configuring a Driver.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// WithID sets the driver identifier that keys the registry and metrics labels.
// It defaults to the instrument name; drivers for several units of the same
// model need distinct identifiers.
func WithID(id string) Option {
	return optFunc(func(cfg *config) error {
		if id == "" {
			return fmt.Errorf("protocol: empty driver id")
		}
		cfg.id = id

		return nil
	})
}

// WithCommandTimeout sets the default time an exchange waits for its
// terminal pattern.
func WithCommandTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinCommandTimeout || d > MaxCommandTimeout {
			return fmt.Errorf("protocol: command timeout %v out of range [%v, %v]", d, MinCommandTimeout, MaxCommandTimeout)
		}
		cfg.commandTimeout = d

		return nil
	})
}

// WithWakeInterval sets how long an exchange waits in silence before it
// wakes the device and resends the command.
func WithWakeInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinWakeInterval || d > MaxWakeInterval {
			return fmt.Errorf("protocol: wake interval %v out of range [%v, %v]", d, MinWakeInterval, MaxWakeInterval)
		}
		cfg.wakeInterval = d

		return nil
	})
}

// WithPollTimeout sets the bounded wait of a single channel read.
func WithPollTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinPollTimeout || d > MaxPollTimeout {
			return fmt.Errorf("protocol: poll timeout %v out of range [%v, %v]", d, MinPollTimeout, MaxPollTimeout)
		}
		cfg.pollTimeout = d

		return nil
	})
}

// WithEventQueueSize sets the capacity of the queue used by Post.
func WithEventQueueSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 1 || n > MaxEventQueueSize {
			return fmt.Errorf("protocol: event queue size %d out of range [1, %d]", n, MaxEventQueueSize)
		}
		cfg.eventQueueSize = n

		return nil
	})
}

// WithFlushOnStall selects whether the driver drops the chunker buffer when
// it reports a stalled frame. The default is true.
func WithFlushOnStall(enabled bool) Option {
	return optFunc(func(cfg *config) error {
		cfg.flushOnStall = enabled
		return nil
	})
}

// WithMaxBufferSize sets the chunker buffer bound.
func WithMaxBufferSize(n int) Option {
	return optFunc(func(cfg *config) error {
		cfg.chunkerOpts = append(cfg.chunkerOpts, chunker.WithMaxBufferSize(n))
		return nil
	})
}

// WithSampleHandler adds a sample sink.
func WithSampleHandler(h SampleHandler) Option {
	return optFunc(func(cfg *config) error {
		if h != nil {
			cfg.sampleHandlers = append(cfg.sampleHandlers, h)
		}

		return nil
	})
}

// WithStateChangeHandler adds a state change listener.
func WithStateChangeHandler(h StateChangeHandler) Option {
	return optFunc(func(cfg *config) error {
		if h != nil {
			cfg.stateHandlers = append(cfg.stateHandlers, h)
		}

		return nil
	})
}

// WithErrorHandler adds an error listener.
func WithErrorHandler(h ErrorHandler) Option {
	return optFunc(func(cfg *config) error {
		if h != nil {
			cfg.errorHandlers = append(cfg.errorHandlers, h)
		}

		return nil
	})
}

// WithDirectAccessHandler sets the receiver of raw bytes in direct access.
func WithDirectAccessHandler(h DirectAccessHandler) Option {
	return optFunc(func(cfg *config) error {
		cfg.daHandler = h
		return nil
	})
}
