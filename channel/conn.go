package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/protocol"
)

// Default connection settings.
const (
	DefaultReadBufferSize = 4096
	DefaultWriteTimeout   = 3 * time.Second
	DefaultDialTimeout    = 3 * time.Second
)

// Range limits.
const (
	MinReadBufferSize = 64
	MaxReadBufferSize = 1 << 20

	MinWriteTimeout = 10 * time.Millisecond
	MaxWriteTimeout = time.Minute
)

type connConfig struct {
	readBufferSize int
	writeTimeout   time.Duration
	dialTimeout    time.Duration
	logger         logger.Logger
}

func defaultConnConfig() *connConfig {
	return &connConfig{
		readBufferSize: DefaultReadBufferSize,
		writeTimeout:   DefaultWriteTimeout,
		dialTimeout:    DefaultDialTimeout,
		logger:         logger.GetLogger(),
	}
}

// ConnOption is a functional option for configuring a Conn.
type ConnOption interface {
	apply(*connConfig) error
}

type connOptFunc func(*connConfig) error

func (f connOptFunc) apply(cfg *connConfig) error { return f(cfg) }

// WithReadBufferSize sets the size of a single read.
func WithReadBufferSize(n int) ConnOption {
	return connOptFunc(func(cfg *connConfig) error {
		if n < MinReadBufferSize || n > MaxReadBufferSize {
			return fmt.Errorf("channel: read buffer size %d out of range [%d, %d]", n, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithWriteTimeout sets the deadline of a single write.
func WithWriteTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *connConfig) error {
		if d < MinWriteTimeout || d > MaxWriteTimeout {
			return fmt.Errorf("channel: write timeout %v out of range [%v, %v]", d, MinWriteTimeout, MaxWriteTimeout)
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithDialTimeout sets the connect timeout used by Dial.
func WithDialTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *connConfig) error {
		if d <= 0 {
			return fmt.Errorf("channel: dial timeout %v must be positive", d)
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *connConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// Conn is a protocol.Channel over a stream connection, e.g. a TCP port of a
// serial terminal server.
type Conn struct {
	conn   net.Conn
	cfg    *connConfig
	buf    []byte
	logger logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ protocol.Channel = (*Conn)(nil)

// NewConn wraps conn. The Conn takes ownership of it.
func NewConn(conn net.Conn, opts ...ConnOption) (*Conn, error) {
	if conn == nil {
		return nil, errors.New("channel: nil connection")
	}

	cfg := defaultConnConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Conn{
		conn:   conn,
		cfg:    cfg,
		buf:    make([]byte, cfg.readBufferSize),
		logger: cfg.logger.With("remote", remoteAddr(conn)),
	}, nil
}

// Dial connects to a TCP address and wraps the connection.
func Dial(ctx context.Context, address string, opts ...ConnOption) (*Conn, error) {
	cfg := defaultConnConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	dialer := net.Dialer{Timeout: cfg.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", address, err)
	}

	cfg.logger.Info("channel: connected", "address", address)

	return NewConn(conn, opts...)
}

// Read waits at most timeout for data. It returns (nil, nil) on timeout.
func (c *Conn) Read(timeout time.Duration) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	n, err := c.conn.Read(c.buf)
	if n > 0 {
		// a partial read with a timeout still delivers the bytes
		data := append([]byte(nil), c.buf[:n]...)
		if err != nil && !isTimeout(err) {
			c.logger.Debug("channel: read error after data", "error", err)
		}

		return data, nil
	}

	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}

		return nil, err
	}

	return nil, nil
}

// Write writes all of data within the write timeout.
func (c *Conn) Write(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout)); err != nil {
		return err
	}

	for written := 0; written < len(data); {
		n, err := c.conn.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		c.logger.Debug("channel: connection closed")
	})

	return c.closeErr
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
