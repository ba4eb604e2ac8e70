// Package channel provides protocol.Channel implementations: Conn over a
// stream connection (instrument ports exposed by serial terminal servers)
// and Serial over a local serial port.
package channel

import "net"

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = net.ErrClosed
