package protocol

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/param"
	"github.com/arloliu/go-instrument/record"
)

const (
	nl         = "\r\n"
	promptText = "<Executed/>" + nl + "S>"

	kindStatus chunker.Kind = "status"
	kindSample chunker.Kind = "sample"
)

// fakeChannel is an in-memory Channel. Every Write is passed to respond and
// the returned chunks become readable.
type fakeChannel struct {
	mu      sync.Mutex
	inbound [][]byte
	writes  []string
	closed  bool
	notify  chan struct{}
	respond func(written string) []string
}

func newFakeChannel(respond func(written string) []string) *fakeChannel {
	return &fakeChannel{notify: make(chan struct{}, 1), respond: respond}
}

func (f *fakeChannel) Read(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, net.ErrClosed
		}
		if len(f.inbound) > 0 {
			chunk := f.inbound[0]
			f.inbound = f.inbound[1:]
			f.mu.Unlock()

			return chunk, nil
		}
		f.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-f.notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (f *fakeChannel) Write(data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return net.ErrClosed
	}

	f.writes = append(f.writes, string(data))

	var chunks []string
	if f.respond != nil {
		chunks = f.respond(string(data))
	}
	f.mu.Unlock()

	for _, c := range chunks {
		f.push(c)
	}

	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()

	return nil
}

// push makes data readable as one chunk.
func (f *fakeChannel) push(data string) {
	if data == "" {
		return
	}

	f.mu.Lock()
	f.inbound = append(f.inbound, []byte(data))
	f.mu.Unlock()
	f.signal()
}

func (f *fakeChannel) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *fakeChannel) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.writes...)
}

// simInstrument models a pressure sensor that answers with XML and the
// "<Executed/>" prompt.
type simInstrument struct {
	mu sync.Mutex

	params   map[string]int
	serial   string
	asleep   bool
	silent   bool
	echo     bool
	fragment int
	reject   map[string]bool
	confirm  map[string]bool

	awaiting string
	applied  []string
	samples  int
}

func newSimInstrument() *simInstrument {
	return &simInstrument{
		params:  map[string]int{"SamplePeriod": 15, "BatteryType": 1, "UploadType": 0},
		serial:  "05400012",
		reject:  make(map[string]bool),
		confirm: make(map[string]bool),
	}
}

func (s *simInstrument) statusXML() string {
	return fmt.Sprintf("<StatusData DeviceType='SBE54' SerialNumber='%s'>"+nl+
		"<SerialNumber>%s</SerialNumber>"+nl+
		"<SamplePeriod>%d</SamplePeriod>"+nl+
		"<BatteryType>%d</BatteryType>"+nl+
		"<UploadType>%d</UploadType>"+nl+
		"</StatusData>"+nl,
		s.serial, s.serial, s.params["SamplePeriod"], s.params["BatteryType"], s.params["UploadType"])
}

func sampleXML(num int, psi string) string {
	return fmt.Sprintf("<Sample Num='%d' Type='Pressure'>"+nl+
		"<Time>2012-11-07T12:21:25</Time>"+nl+
		"<PressurePSI>%s</PressurePSI>"+nl+
		"<PTemp>23.9438</PTemp>"+nl+
		"</Sample>"+nl, num, psi)
}

func errorXML(msg string) string {
	return "<Error type='INVALID COMMAND' msg='" + msg + "'/>" + nl + promptText
}

func (s *simInstrument) Respond(written string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.silent {
		return nil
	}
	if s.asleep {
		s.asleep = false
		return nil
	}

	var out string
	if s.echo {
		out = written
	}
	out += s.answer(strings.TrimRight(written, nl))

	return s.split(out)
}

func (s *simInstrument) answer(cmd string) string {
	if s.awaiting != "" {
		pending := s.awaiting
		s.awaiting = ""
		if !strings.EqualFold(cmd, "y") {
			return errorXML("not confirmed")
		}

		return s.apply(pending)
	}

	switch {
	case cmd == "":
		return promptText
	case cmd == "GetSD":
		return s.statusXML() + promptText
	case cmd == "TS":
		s.samples++
		return sampleXML(s.samples, "14.5421") + promptText
	case cmd == "Start":
		return "<Executed/>" + nl
	case cmd == "Stop":
		return promptText
	case cmd == "TestEeprom":
		return "<TestResult>PASS</TestResult>" + nl + promptText
	case strings.HasPrefix(cmd, "SetTime="):
		s.applied = append(s.applied, cmd)
		return promptText
	case strings.HasPrefix(cmd, "Set"):
		name, _, _ := strings.Cut(strings.TrimPrefix(cmd, "Set"), "=")
		if s.reject[name] {
			return errorXML("rejected " + name)
		}
		if s.confirm[name] {
			s.awaiting = cmd
			return "Changing " + name + ", proceed Y/N ?"
		}

		return s.apply(cmd)
	default:
		return errorXML("unknown " + cmd)
	}
}

func (s *simInstrument) apply(cmd string) string {
	name, value, ok := strings.Cut(strings.TrimPrefix(cmd, "Set"), "=")
	n, err := strconv.Atoi(value)
	if !ok || err != nil {
		return errorXML("bad value " + value)
	}

	s.params[name] = n
	s.applied = append(s.applied, cmd)

	return promptText
}

func (s *simInstrument) split(out string) []string {
	if s.fragment <= 0 || len(out) <= s.fragment {
		return []string{out}
	}

	var chunks []string
	for len(out) > s.fragment {
		chunks = append(chunks, out[:s.fragment])
		out = out[s.fragment:]
	}

	return append(chunks, out)
}

func (s *simInstrument) Applied() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.applied...)
}

func (s *simInstrument) Param(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.params[name]
}

func (s *simInstrument) Set(fn func(s *simInstrument)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s)
}

func newTestParams(t *testing.T) *param.Dictionary {
	t.Helper()

	descs := []param.Descriptor{
		{
			Name:     "SerialNumber",
			Pattern:  regexp.MustCompile(`<SerialNumber>(\w+)</SerialNumber>`),
			Type:     param.String,
			ReadOnly: true,
		},
		{
			Name:         "SamplePeriod",
			Command:      "SetSamplePeriod",
			Pattern:      regexp.MustCompile(`<SamplePeriod>(\d+)</SamplePeriod>`),
			Type:         param.Int,
			DirectAccess: true,
		},
		{
			Name:         "BatteryType",
			Command:      "SetBatteryType",
			Pattern:      regexp.MustCompile(`<BatteryType>(\d+)</BatteryType>`),
			Type:         param.Int,
			DirectAccess: true,
		},
		{
			Name:    "UploadType",
			Command: "SetUploadType",
			Pattern: regexp.MustCompile(`<UploadType>(\d+)</UploadType>`),
			Type:    param.Int,
		},
	}

	d, err := param.NewDictionary(descs, param.WithForcedRestore("UploadType", 0))
	require.NoError(t, err)

	return d
}

func newTestCapabilities(t *testing.T) *Capabilities {
	t.Helper()

	dec, err := record.NewDecoder(&record.TextRule{
		FrameKind: kindSample,
		Fields: []record.FieldRule{
			record.TextField("sample_number", `<Sample Num='(\d+)'`, record.Int).Must(),
			record.TextField("pressure", `<PressurePSI>([0-9.+-]+)</PressurePSI>`, record.Float).Must(),
			record.DateField("date_time", `<Time>([^<]+)</Time>`, "2006-01-02T15:04:05"),
		},
	})
	require.NoError(t, err)

	return &Capabilities{
		Name: "sim54",
		Matchers: []chunker.Matcher{
			chunker.NewDelimitedMatcher(kindStatus, "<StatusData ", "</StatusData>"),
			chunker.NewDelimitedMatcher(kindSample, "<Sample Num=", "</Sample>"),
		},
		Decoder:          dec,
		Params:           newTestParams(t),
		ParamKinds:       []chunker.Kind{kindStatus},
		Newline:          nl,
		Prompt:           regexp.MustCompile(`<Executed/>\r\nS>`),
		AutosamplePrompt: regexp.MustCompile(`<Executed/>\r\n`),
		ErrorPrompt:      regexp.MustCompile(`<Error.*?\r\n<Executed/>\r\nS>`),
		ConfirmPrompt:    regexp.MustCompile(`(?i)proceed Y/N \?`),
		ConfirmReply:     "y",
		StatusCommands:   []string{"GetSD"},
		SampleCommand:    "TS",
		StartCommand:     "Start",
		StopCommand:      "Stop",
		TestCommands:     []string{"TestEeprom"},
		ClockSync:        ClockSync{Command: "SetTime", Layout: "2006-01-02T15:04:05"},
	}
}

// recorder collects everything the driver reports upward.
type recorder struct {
	mu          sync.Mutex
	samples     []*record.Sample
	transitions [][2]State
	errs        []error
	direct      []string
}

func (r *recorder) options() []Option {
	return []Option{
		WithSampleHandler(func(s *record.Sample, _ time.Time) {
			r.mu.Lock()
			r.samples = append(r.samples, s)
			r.mu.Unlock()
		}),
		WithStateChangeHandler(func(prev State, next State) {
			r.mu.Lock()
			r.transitions = append(r.transitions, [2]State{prev, next})
			r.mu.Unlock()
		}),
		WithErrorHandler(func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}),
		WithDirectAccessHandler(func(data []byte) {
			r.mu.Lock()
			r.direct = append(r.direct, string(data))
			r.mu.Unlock()
		}),
	}
}

func (r *recorder) Samples() []*record.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*record.Sample(nil), r.samples...)
}

func (r *recorder) Transitions() [][2]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][2]State(nil), r.transitions...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}

func (r *recorder) Direct() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return strings.Join(r.direct, "")
}

type testDriver struct {
	*Driver
	sim *simInstrument
	ch  *fakeChannel
	rec *recorder
}

func newTestDriver(t *testing.T, caps *Capabilities, opts ...Option) *testDriver {
	t.Helper()

	if caps == nil {
		caps = newTestCapabilities(t)
	}

	sim := newSimInstrument()
	ch := newFakeChannel(sim.Respond)
	rec := &recorder{}

	allOpts := append([]Option{
		WithCommandTimeout(500 * time.Millisecond),
		WithWakeInterval(30 * time.Millisecond),
		WithPollTimeout(5 * time.Millisecond),
	}, rec.options()...)
	allOpts = append(allOpts, opts...)

	d, err := NewDriver(ch, caps, allOpts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = d.Close() })

	return &testDriver{Driver: d, sim: sim, ch: ch, rec: rec}
}

// discover brings the driver to COMMAND.
func (td *testDriver) discover(t *testing.T) {
	t.Helper()

	state, _, err := td.Dispatch(context.Background(), EventDiscover, nil)
	require.NoError(t, err)
	require.Equal(t, StateCommand, state)
}

// pollUntil polls the driver until cond holds or the attempts run out.
func (td *testDriver) pollUntil(t *testing.T, cond func() bool) {
	t.Helper()

	for range 100 {
		if cond() {
			return
		}
		require.NoError(t, td.Poll(context.Background()))
	}
	require.True(t, cond())
}
