package protocol

import "time"

// Channel is a bidirectional byte channel to an instrument.
//
// Read waits at most timeout for data and returns (nil, nil) when nothing
// arrived. Implementations live in the channel package.
type Channel interface {
	Read(timeout time.Duration) ([]byte, error)
	Write(data []byte) error
	Close() error
}
