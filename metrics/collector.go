// Package metrics exports driver counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-instrument/protocol"
	"github.com/arloliu/go-instrument/record"
)

const namespace = "instrument"

type counterDef struct {
	desc  *prometheus.Desc
	value func(m *protocol.DriverMetrics) uint64
}

func newCounterDef(name string, help string, value func(m *protocol.DriverMetrics) uint64) counterDef {
	return counterDef{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "driver", name), help, []string{"instrument"}, nil),
		value: value,
	}
}

var counterDefs = []counterDef{
	newCounterDef("bytes_received_total", "Bytes read from the instrument channel.",
		func(m *protocol.DriverMetrics) uint64 { return m.BytesRecvCount.Load() }),
	newCounterDef("bytes_sent_total", "Bytes written to the instrument channel.",
		func(m *protocol.DriverMetrics) uint64 { return m.BytesSendCount.Load() }),
	newCounterDef("frames_total", "Frames extracted by the chunker.",
		func(m *protocol.DriverMetrics) uint64 { return m.FrameCount.Load() }),
	newCounterDef("samples_total", "Samples delivered to the sample handlers.",
		func(m *protocol.DriverMetrics) uint64 { return m.SampleCount.Load() }),
	newCounterDef("decode_errors_total", "Frames dropped by the decoder.",
		func(m *protocol.DriverMetrics) uint64 { return m.DecodeErrCount.Load() }),
	newCounterDef("stalls_total", "Stalled frame conditions.",
		func(m *protocol.DriverMetrics) uint64 { return m.StallCount.Load() }),
	newCounterDef("commands_total", "Command exchanges started.",
		func(m *protocol.DriverMetrics) uint64 { return m.CommandCount.Load() }),
	newCounterDef("command_timeouts_total", "Command exchanges that timed out.",
		func(m *protocol.DriverMetrics) uint64 { return m.CommandTimeoutCount.Load() }),
	newCounterDef("command_rejects_total", "Command exchanges rejected by the instrument.",
		func(m *protocol.DriverMetrics) uint64 { return m.CommandRejectCount.Load() }),
	newCounterDef("wakeups_total", "Wake-and-resend attempts.",
		func(m *protocol.DriverMetrics) uint64 { return m.WakeupCount.Load() }),
	newCounterDef("transitions_total", "Protocol state transitions.",
		func(m *protocol.DriverMetrics) uint64 { return m.TransitionCount.Load() }),
	newCounterDef("invalid_transitions_total", "Events rejected in the current state.",
		func(m *protocol.DriverMetrics) uint64 { return m.InvalidTransitionCount.Load() }),
	newCounterDef("echo_strips_total", "Direct access echoes removed.",
		func(m *protocol.DriverMetrics) uint64 { return m.EchoStripCount.Load() }),
}

var stateDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "driver", "state"),
	"Current protocol state; 1 for the active state.",
	[]string{"instrument", "state"}, nil,
)

var states = []protocol.State{
	protocol.StateUninitialized,
	protocol.StateCommand,
	protocol.StateAutosample,
	protocol.StateDirectAccess,
	protocol.StateTest,
}

// Collector is a prometheus.Collector over the drivers of a registry. Driver
// counters are read at scrape time; per-kind sample counts are recorded by
// the handler returned from SampleHandler.
type Collector struct {
	registry *protocol.Registry
	samples  *prometheus.CounterVec

	registerOnce sync.Once
	registerErr  error
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for the drivers in reg.
func NewCollector(reg *protocol.Registry) *Collector {
	return &Collector{
		registry: reg,
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "record",
				Name:      "samples_total",
				Help:      "Decoded samples by instrument and frame kind.",
			},
			[]string{"instrument", "kind"},
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range counterDefs {
		ch <- def.desc
	}
	ch <- stateDesc
	c.samples.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Range(func(id string, d *protocol.Driver) bool {
		m := d.Metrics()
		for _, def := range counterDefs {
			ch <- prometheus.MustNewConstMetric(def.desc, prometheus.CounterValue, float64(def.value(m)), id)
		}

		cur := d.State()
		for _, s := range states {
			v := 0.0
			if s == cur {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, v, id, s.String())
		}

		return true
	})

	c.samples.Collect(ch)
}

// SampleHandler returns a sample handler that counts samples of instrument
// by kind. Pass the driver id so the label matches the driver counters.
func (c *Collector) SampleHandler(instrument string) protocol.SampleHandler {
	return func(s *record.Sample, _ time.Time) {
		c.samples.WithLabelValues(instrument, string(s.Kind)).Inc()
	}
}

// Register registers the collector with r once; later calls return the first
// result.
func (c *Collector) Register(r prometheus.Registerer) error {
	c.registerOnce.Do(func() {
		c.registerErr = r.Register(c)
	})

	return c.registerErr
}
