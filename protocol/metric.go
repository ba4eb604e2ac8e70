package protocol

import (
	"sync/atomic"
)

// DriverMetrics contains atomic metrics for an instrument driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type DriverMetrics struct {
	// BytesRecvCount indicates the number of bytes read from the channel.
	BytesRecvCount atomic.Uint64
	// BytesSendCount indicates the number of bytes written to the channel.
	BytesSendCount atomic.Uint64

	// FrameCount indicates the number of frames extracted by the chunker.
	FrameCount atomic.Uint64
	// SampleCount indicates the number of samples delivered to the sink.
	SampleCount atomic.Uint64
	// DecodeErrCount indicates the number of frames dropped by the decoder.
	DecodeErrCount atomic.Uint64
	// StallCount indicates the number of stalled-frame conditions.
	StallCount atomic.Uint64

	// CommandCount indicates the number of command exchanges started.
	CommandCount atomic.Uint64
	// CommandTimeoutCount indicates the number of exchanges that timed out.
	CommandTimeoutCount atomic.Uint64
	// CommandRejectCount indicates the number of exchanges the device rejected.
	CommandRejectCount atomic.Uint64
	// WakeupCount indicates the number of wake-and-resend attempts.
	WakeupCount atomic.Uint64

	// TransitionCount indicates the number of state transitions.
	TransitionCount atomic.Uint64
	// InvalidTransitionCount indicates the number of rejected dispatches.
	InvalidTransitionCount atomic.Uint64

	// EchoStripCount indicates the number of direct-access echoes removed.
	EchoStripCount atomic.Uint64
}

func (m *DriverMetrics) addBytesRecv(n int) {
	m.BytesRecvCount.Add(uint64(n))
}

func (m *DriverMetrics) addBytesSend(n int) {
	m.BytesSendCount.Add(uint64(n))
}

func (m *DriverMetrics) incFrameCount() {
	m.FrameCount.Add(1)
}

func (m *DriverMetrics) incSampleCount() {
	m.SampleCount.Add(1)
}

func (m *DriverMetrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *DriverMetrics) incStallCount() {
	m.StallCount.Add(1)
}

func (m *DriverMetrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *DriverMetrics) incCommandTimeoutCount() {
	m.CommandTimeoutCount.Add(1)
}

func (m *DriverMetrics) incCommandRejectCount() {
	m.CommandRejectCount.Add(1)
}

func (m *DriverMetrics) incWakeupCount() {
	m.WakeupCount.Add(1)
}

func (m *DriverMetrics) incTransitionCount() {
	m.TransitionCount.Add(1)
}

func (m *DriverMetrics) incInvalidTransitionCount() {
	m.InvalidTransitionCount.Add(1)
}

func (m *DriverMetrics) incEchoStripCount() {
	m.EchoStripCount.Add(1)
}
