package sbe54

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/channel"
	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/param"
	"github.com/arloliu/go-instrument/protocol"
	"github.com/arloliu/go-instrument/record"
)

func TestDecoder_StatusDocuments(t *testing.T) {
	settings := map[string]int{ParamSamplePeriod: 15, ParamBatteryType: 1, ParamEnableAlerts: 1}
	data := statusXML + promptText + configurationXML(settings) + promptText +
		eventCounterXML + promptText + hardwareXML + promptText

	samples := decodeAll(t, data)
	require.Len(t, samples, 4)

	status := samples[0]
	assert.Equal(t, KindStatus, status.Kind)
	assert.Equal(t, map[string]any{
		"device_type":         "SBE54",
		"serial_number":       int64(5400012),
		"date_time":           record.NTPFromTime(time.Date(2012, 11, 6, 10, 55, 44, 0, time.UTC)),
		"event_count":         int64(573),
		"main_supply_voltage": 23.3,
		"number_of_samples":   int64(22618),
		"bytes_used":          int64(341504),
		"bytes_free":          int64(133876224),
	}, status.Map())

	cfg := samples[1]
	assert.Equal(t, KindConfiguration, cfg.Kind)
	v, ok := cfg.Float("fra0")
	require.True(t, ok)
	assert.InDelta(t, 5.999926e6, v, 1e-3)
	v, ok = cfg.Float("fra2")
	require.True(t, ok)
	assert.InDelta(t, -1.195664e-7, v, 1e-15)
	date, ok := cfg.Value("pressure_cal_date")
	require.True(t, ok)
	assert.Equal(t, utcDate(2011, time.June, 1), date)
	n, ok := cfg.Int("battery_type")
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
	n, ok = cfg.Int("sample_period")
	require.True(t, ok)
	assert.Equal(t, int64(15), n)

	events := samples[2]
	assert.Equal(t, KindEventCounter, events.Kind)
	n, _ = events.Int("number_events")
	assert.Equal(t, int64(573), n)
	n, _ = events.Int("max_stack")
	assert.Equal(t, int64(354), n)
	n, _ = events.Int("serial_receive_overflow")
	assert.Equal(t, int64(255), n)
	n, _ = events.Int("error_12")
	assert.Equal(t, int64(1), n)

	hw := samples[3]
	assert.Equal(t, KindHardware, hw.Kind)
	text, _ := hw.Text("firmware_version")
	assert.Equal(t, "SBE54 V1.3-6MHZ", text)
	text, _ = hw.Text("hardware_version")
	assert.Equal(t, "41477A.1", text)
	date, _ = hw.Value("firmware_date")
	assert.Equal(t, utcDate(2007, time.March, 22), date)
	date, _ = hw.Value("manufacture_date")
	assert.Equal(t, utcDate(2007, time.June, 27), date)
}

func TestDecoder_Samples(t *testing.T) {
	samples := decodeAll(t, "<Executed/>"+nl+sampleXML+refOscXML)
	require.Len(t, samples, 2)

	s := samples[0]
	assert.Equal(t, KindSample, s.Kind)
	assert.Equal(t, map[string]any{
		"sample_number": int64(5947),
		"sample_type":   "Pressure",
		"inst_time":     record.NTPFromTime(time.Date(2012, 11, 7, 12, 21, 25, 0, time.UTC)),
		"pressure":      13.9669,
		"pressure_temp": 18.9047,
	}, s.Map())

	ref := samples[1]
	text, _ := ref.Text("sample_type")
	assert.Equal(t, "RefOsc", text)
	freq, ok := ref.Float("ref_osc_freq")
	require.True(t, ok)
	assert.InDelta(t, 5999995.955, freq, 1e-6)
	assert.False(t, ref.Has("pressure"))
}

func TestDecoder_SampleMissingTime(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)

	_, err = dec.Decode(&chunker.Frame{
		Kind: KindSample,
		Raw:  []byte("<Sample Num='1' Type='Pressure'>" + nl + "<PressurePSI>1.0</PressurePSI>" + nl + "</Sample>"),
	})
	require.ErrorIs(t, err, record.ErrDecode)
}

func TestMatchers_StatusEventSummaryIsNotAnEventCounter(t *testing.T) {
	matchers, err := Matchers()
	require.NoError(t, err)
	c, err := chunker.New(matchers)
	require.NoError(t, err)

	// the status document arrives in two reads
	half := len(statusXML) / 2
	require.NoError(t, c.Feed([]byte(statusXML[:half])))
	assert.Equal(t, 0, c.Pending())
	require.NoError(t, c.Feed([]byte(statusXML[half:]+promptText)))

	f, ok := c.NextFrame()
	require.True(t, ok)
	assert.Equal(t, KindStatus, f.Kind)
	_, ok = c.NextFrame()
	assert.False(t, ok)
}

func TestParams(t *testing.T) {
	params, err := NewParams()
	require.NoError(t, err)

	settings := map[string]int{ParamSamplePeriod: 30, ParamBatteryType: 1, ParamEnableAlerts: 1, ParamUploadType: 2}
	updated := params.UpdateFrom(configurationXML(settings))
	assert.ElementsMatch(t, []string{ParamSamplePeriod, ParamBatteryType, ParamEnableAlerts, ParamUploadType, ParamBaudRate}, updated)

	assert.Equal(t, map[string]any{
		ParamSamplePeriod: int64(30),
		ParamBatteryType:  int64(1),
		ParamEnableAlerts: true,
		ParamUploadType:   int64(2),
		ParamBaudRate:     int64(9600),
	}, params.GetAll())

	cmd, err := params.Command(ParamEnableAlerts, false)
	require.NoError(t, err)
	assert.Equal(t, "SetEnableAlerts=0", cmd)

	_, err = params.Command(ParamBaudRate, 19200)
	require.ErrorIs(t, err, param.ErrReadOnly)

	snap, err := params.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, param.Snapshot{
		{Name: ParamSamplePeriod, Value: int64(30)},
		{Name: ParamBatteryType, Value: int64(1)},
		{Name: ParamEnableAlerts, Value: true},
		{Name: ParamUploadType, Value: int64(0)},
	}, params.RestorePlan(snap))
}

type pipeDriver struct {
	*protocol.Driver
	dev     *device
	samples chan *record.Sample
	direct  chan string
}

func newPipeDriver(t *testing.T) *pipeDriver {
	t.Helper()

	local, remote := net.Pipe()
	dev := newDevice()
	go dev.serve(remote)

	conn, err := channel.NewConn(local)
	require.NoError(t, err)

	caps, err := Capabilities()
	require.NoError(t, err)

	pd := &pipeDriver{dev: dev, samples: make(chan *record.Sample, 16), direct: make(chan string, 16)}
	pd.Driver, err = protocol.NewDriver(conn, caps,
		protocol.WithCommandTimeout(2*time.Second),
		protocol.WithPollTimeout(5*time.Millisecond),
		protocol.WithSampleHandler(func(s *record.Sample, _ time.Time) { pd.samples <- s }),
		protocol.WithDirectAccessHandler(func(data []byte) { pd.direct <- string(data) }),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pd.Close()
		_ = remote.Close()
	})

	return pd
}

// drainSamples returns the samples delivered so far grouped by kind.
func (pd *pipeDriver) drainSamples() map[chunker.Kind][]*record.Sample {
	out := make(map[chunker.Kind][]*record.Sample)
	for {
		select {
		case s := <-pd.samples:
			out[s.Kind] = append(out[s.Kind], s)
		default:
			return out
		}
	}
}

func TestDriver_DiscoverAndStatus(t *testing.T) {
	pd := newPipeDriver(t)
	ctx := context.Background()

	state, _, err := pd.Dispatch(ctx, protocol.EventDiscover, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.StateCommand, state)

	assert.Equal(t, []string{"GetCD", "GetSD", "GetEC", "GetHD"}, pd.dev.Received())

	v, err := pd.Params().Get(ParamSamplePeriod)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	got := pd.drainSamples()
	for _, kind := range []chunker.Kind{KindConfiguration, KindStatus, KindEventCounter, KindHardware} {
		assert.Len(t, got[kind], 1, "kind %s", kind)
	}

	_, _, err = pd.Dispatch(ctx, protocol.EventAcquireSample, nil)
	require.NoError(t, err)
	got = pd.drainSamples()
	require.Len(t, got[KindSample], 1)
	text, _ := got[KindSample][0].Text("sample_type")
	assert.Equal(t, "RefOsc", text)

	at := time.Date(2013, 1, 30, 15, 36, 53, 0, time.UTC)
	_, cmd, err := pd.Dispatch(ctx, protocol.EventClockSync, at)
	require.NoError(t, err)
	assert.Equal(t, "SetTime=2013-01-30T15:36:53", cmd)
}

func TestDriver_SetAndReject(t *testing.T) {
	pd := newPipeDriver(t)
	ctx := context.Background()

	_, _, err := pd.Dispatch(ctx, protocol.EventDiscover, nil)
	require.NoError(t, err)

	_, _, err = pd.Dispatch(ctx, protocol.EventSet, map[string]any{ParamSamplePeriod: 30, ParamEnableAlerts: true})
	require.NoError(t, err)
	assert.Equal(t, 30, pd.dev.Setting(ParamSamplePeriod))
	assert.Equal(t, 1, pd.dev.Setting(ParamEnableAlerts))

	v, err := pd.Params().Get(ParamEnableAlerts)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = pd.Execute(ctx, protocol.Exchange{Command: "Bogus"})
	require.ErrorIs(t, err, protocol.ErrCommandRejected)
	assert.Equal(t, protocol.StateCommand, pd.State())
}

func TestDriver_AutosampleDeliversSamples(t *testing.T) {
	pd := newPipeDriver(t)
	ctx := context.Background()

	_, _, err := pd.Dispatch(ctx, protocol.EventDiscover, nil)
	require.NoError(t, err)
	pd.drainSamples()

	state, _, err := pd.Dispatch(ctx, protocol.EventStartAutosample, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.StateAutosample, state)

	select {
	case s := <-pd.samples:
		assert.Equal(t, KindSample, s.Kind)
	case <-time.After(time.Second):
		for range 50 {
			require.NoError(t, pd.Poll(ctx))
		}
		got := pd.drainSamples()
		require.Len(t, got[KindSample], 1)
	}

	state, _, err = pd.Dispatch(ctx, protocol.EventStopAutosample, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateCommand, state)
}

func TestDriver_DirectAccessForcesUploadType(t *testing.T) {
	pd := newPipeDriver(t)
	ctx := context.Background()

	_, _, err := pd.Dispatch(ctx, protocol.EventDiscover, nil)
	require.NoError(t, err)

	state, _, err := pd.Dispatch(ctx, protocol.EventStartDirect, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.StateDirectAccess, state)

	_, _, err = pd.Dispatch(ctx, protocol.EventExecuteDirect, "SetUploadType=1"+nl)
	require.NoError(t, err)

	var direct strings.Builder
	for i := 0; i < 200 && !strings.Contains(direct.String(), promptText); i++ {
		require.NoError(t, pd.Poll(ctx))
		select {
		case s := <-pd.direct:
			direct.WriteString(s)
		default:
		}
	}
	require.Contains(t, direct.String(), promptText)
	assert.Equal(t, 1, pd.dev.Setting(ParamUploadType))

	state, _, err = pd.Dispatch(ctx, protocol.EventStopDirect, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.StateCommand, state)

	received := pd.dev.Received()
	assert.Equal(t, []string{
		"SetSamplePeriod=15",
		"SetBatteryType=0",
		"SetEnableAlerts=0",
		"SetUploadType=0",
	}, received[5:9])
	assert.Equal(t, 0, pd.dev.Setting(ParamUploadType))
}

func TestParams_FormatParseRoundTrip(t *testing.T) {
	params, err := NewParams()
	require.NoError(t, err)

	for _, name := range params.Names() {
		desc, ok := params.Descriptor(name)
		require.True(t, ok)

		values := []any{int64(0), int64(15), int64(115200)}
		if desc.Type == param.Bool {
			values = []any{true, false}
		}

		for _, v := range values {
			text, err := params.Format(name, v)
			require.NoError(t, err, "%s: format %v", name, v)

			got, err := params.Parse(name, text)
			require.NoError(t, err, "%s: parse %q", name, text)
			assert.Equal(t, v, got, "%s: %q", name, text)
		}
	}
}
