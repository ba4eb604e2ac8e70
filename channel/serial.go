package channel

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/protocol"
)

// DefaultBaudRate is the factory rate of most Sea-Bird instruments.
const DefaultBaudRate = 9600

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

type serialConfig struct {
	mode           serial.Mode
	readBufferSize int
	logger         logger.Logger
}

func defaultSerialConfig() *serialConfig {
	return &serialConfig{
		mode: serial.Mode{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		readBufferSize: DefaultReadBufferSize,
		logger:         logger.GetLogger(),
	}
}

// SerialOption is a functional option for configuring a serial channel.
type SerialOption interface {
	apply(*serialConfig) error
}

type serialOptFunc func(*serialConfig) error

func (f serialOptFunc) apply(cfg *serialConfig) error { return f(cfg) }

// WithBaudRate sets the line rate.
func WithBaudRate(rate int) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		if !slices.Contains(validBaudRates, rate) {
			return fmt.Errorf("channel: unsupported baud rate %d", rate)
		}
		cfg.mode.BaudRate = rate

		return nil
	})
}

// WithDataBits sets the number of data bits, 5 to 8.
func WithDataBits(bits int) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("channel: data bits %d out of range [5, 8]", bits)
		}
		cfg.mode.DataBits = bits

		return nil
	})
}

// WithParity sets the parity: "none", "odd", "even", "mark" or "space".
func WithParity(parity string) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		p, err := ParseParity(parity)
		if err != nil {
			return err
		}
		cfg.mode.Parity = p

		return nil
	})
}

// WithStopBits sets the number of stop bits, 1 or 2.
func WithStopBits(bits int) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		switch bits {
		case 1:
			cfg.mode.StopBits = serial.OneStopBit
		case 2:
			cfg.mode.StopBits = serial.TwoStopBits
		default:
			return fmt.Errorf("channel: stop bits %d not 1 or 2", bits)
		}

		return nil
	})
}

// WithSerialReadBufferSize sets the size of a single read.
func WithSerialReadBufferSize(n int) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		if n < MinReadBufferSize || n > MaxReadBufferSize {
			return fmt.Errorf("channel: read buffer size %d out of range [%d, %d]", n, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithSerialLogger sets the logger. A nil logger is ignored.
func WithSerialLogger(l logger.Logger) SerialOption {
	return serialOptFunc(func(cfg *serialConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// ParseParity converts a parity name.
func ParseParity(name string) (serial.Parity, error) {
	switch name {
	case "", "none", "N":
		return serial.NoParity, nil
	case "odd", "O":
		return serial.OddParity, nil
	case "even", "E":
		return serial.EvenParity, nil
	case "mark", "M":
		return serial.MarkParity, nil
	case "space", "S":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("channel: unknown parity %q", name)
	}
}

// Port is the subset of serial.Port a Serial channel uses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Serial is a protocol.Channel over a serial port.
type Serial struct {
	port   Port
	buf    []byte
	logger logger.Logger

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

var _ protocol.Channel = (*Serial)(nil)

// OpenSerial opens the serial device at path, e.g. "/dev/ttyUSB0", and
// discards any stale input.
func OpenSerial(path string, opts ...SerialOption) (*Serial, error) {
	cfg := defaultSerialConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	port, err := serial.Open(path, &cfg.mode)
	if err != nil {
		return nil, fmt.Errorf("channel: open %s: %w", path, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("channel: reset %s: %w", path, err)
	}

	cfg.logger.Info("channel: serial port opened", "path", path, "baud", cfg.mode.BaudRate)

	return newSerial(port, cfg), nil
}

// NewSerial wraps an already opened port.
func NewSerial(port Port, opts ...SerialOption) (*Serial, error) {
	if port == nil {
		return nil, errors.New("channel: nil port")
	}

	cfg := defaultSerialConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return newSerial(port, cfg), nil
}

func newSerial(port Port, cfg *serialConfig) *Serial {
	return &Serial{
		port:   port,
		buf:    make([]byte, cfg.readBufferSize),
		logger: cfg.logger,
	}
}

// Read waits at most timeout for data. It returns (nil, nil) on timeout.
func (s *Serial) Read(timeout time.Duration) ([]byte, error) {
	if err := s.setTimeout(timeout); err != nil {
		return nil, err
	}

	n, err := s.port.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}

	if err != nil {
		return nil, err
	}

	if s.isClosed() {
		return nil, ErrClosed
	}

	return nil, nil
}

func (s *Serial) setTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if timeout == s.timeout {
		return nil
	}

	if err := s.port.SetReadTimeout(timeout); err != nil {
		return err
	}
	s.timeout = timeout

	return nil
}

// Write writes all of data.
func (s *Serial) Write(data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	for written := 0; written < len(data); {
		n, err := s.port.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// Close closes the port. It is safe to call more than once.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("channel: serial port closed")

	return s.port.Close()
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
