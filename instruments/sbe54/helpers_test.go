package sbe54

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/record"
)

const (
	nl         = "\r\n"
	promptText = "<Executed/>" + nl + "S>"
)

const statusXML = "<StatusData DeviceType='SBE54' SerialNumber='05400012'>" + nl +
	"<DateTime>2012-11-06T10:55:44</DateTime>" + nl +
	"<EventSummary numEvents='573'/>" + nl +
	"<Power>" + nl +
	"<MainSupplyVoltage>23.3</MainSupplyVoltage>" + nl +
	"</Power>" + nl +
	"<MemorySummary>" + nl +
	"<Samples>22618</Samples>" + nl +
	"<Bytes>341504</Bytes>" + nl +
	"<BytesFree>133876224</BytesFree>" + nl +
	"</MemorySummary>" + nl +
	"</StatusData>" + nl

const eventCounterXML = "<EventSummary numEvents='573' maxStack='354'/>" + nl +
	"<EventList DeviceType='SBE54' SerialNumber='05400012'>" + nl +
	"<Event type='PowerOnReset' count='25'/>" + nl +
	"<Event type='PowerFailReset' count='25'/>" + nl +
	"<Event type='SerialByteErr' count='9'/>" + nl +
	"<Event type='CMDBuffOflow' count='1'/>" + nl +
	"<Event type='SerialRxOflow' count='255'/>" + nl +
	"<Event type='LowBattery' count='255'/>" + nl +
	"<Event type='SignalErr' count='1'/>" + nl +
	"<Event type='Error10' count='1'/>" + nl +
	"<Event type='Error12' count='1'/>" + nl +
	"</EventList>" + nl

const hardwareXML = "<HardwareData DeviceType='SBE54' SerialNumber='05400012'>" + nl +
	"<Manufacturer>Sea-Bird Electronics, Inc</Manufacturer>" + nl +
	"<FirmwareVersion>SBE54 V1.3-6MHZ</FirmwareVersion>" + nl +
	"<FirmwareDate>Mar 22 2007</FirmwareDate>" + nl +
	"<HardwareVersion>41477A.1</HardwareVersion>" + nl +
	"<HardwareVersion>41478A.1T</HardwareVersion>" + nl +
	"<PCBSerialNum>NOT SET</PCBSerialNum>" + nl +
	"<PCBSerialNum>NOT SET</PCBSerialNum>" + nl +
	"<PCBType>1</PCBType>" + nl +
	"<MfgDate>Jun 27 2007</MfgDate>" + nl +
	"</HardwareData>" + nl

const sampleXML = "<Sample Num='5947' Type='Pressure'>" + nl +
	"<Time>2012-11-07T12:21:25</Time>" + nl +
	"<PressurePSI>13.9669</PressurePSI>" + nl +
	"<PTemp>18.9047</PTemp>" + nl +
	"</Sample>" + nl

const refOscXML = "<Sample Num='1244' Type='RefOsc'>" + nl +
	"<Time>2013-01-30T15:36:53</Time>" + nl +
	"<RefOscFreq>5999995.955</RefOscFreq>" + nl +
	"<PCBTempRaw>18413</PCBTempRaw>" + nl +
	"<RefErr>0</RefErr>" + nl +
	"</Sample>" + nl

func configurationXML(settings map[string]int) string {
	return "<ConfigurationData DeviceType='SBE54' SerialNumber='05400012'>" + nl +
		"<CalibrationCoefficients>" + nl +
		"<AcqOscCalDate>2012-02-20</AcqOscCalDate>" + nl +
		"<FRA0>5.999926E+06</FRA0>" + nl +
		"<FRA1>5.792290E-03</FRA1>" + nl +
		"<FRA2>-1.195664E-07</FRA2>" + nl +
		"<FRA3>7.018589E-13</FRA3>" + nl +
		"<PressureSerialNum>121451</PressureSerialNum>" + nl +
		"<PressureCalDate>2011-06-01</PressureCalDate>" + nl +
		"<pu0>5.820407E+00</pu0>" + nl +
		"<py1>-3.845374E+03</py1>" + nl +
		"<py2>-1.078882E+04</py2>" + nl +
		"<py3>0.000000E+00</py3>" + nl +
		"<pc1>-2.700543E+04</pc1>" + nl +
		"<pc2>-1.738438E+03</pc2>" + nl +
		"<pc3>7.629962E+04</pc3>" + nl +
		"<pd1>3.739600E-02</pd1>" + nl +
		"<pd2>0.000000E+00</pd2>" + nl +
		"<pt1>3.027306E+01</pt1>" + nl +
		"<pt2>2.231025E-01</pt2>" + nl +
		"<pt3>5.398972E+01</pt3>" + nl +
		"<pt4>1.455506E+02</pt4>" + nl +
		"<poffset>0.000000E+00</poffset>" + nl +
		"<prange>6.000000E+03</prange>" + nl +
		"</CalibrationCoefficients>" + nl +
		fmt.Sprintf("<Settings batteryType='%d' baudRate='9600' enableAlerts='%d' uploadType='%d' samplePeriod='%d'/>",
			settings[ParamBatteryType], settings[ParamEnableAlerts], settings[ParamUploadType], settings[ParamSamplePeriod]) + nl +
		"</ConfigurationData>" + nl
}

func errorXML(msg string) string {
	return "<Error type='INVALID ARGUMENT' msg='" + msg + "'/>" + nl + promptText
}

// device is a line-oriented SBE 54 simulator.
type device struct {
	mu       sync.Mutex
	settings map[string]int
	received []string
	sampling bool
}

func newDevice() *device {
	return &device{settings: map[string]int{
		ParamSamplePeriod: 15,
		ParamBatteryType:  0,
		ParamEnableAlerts: 0,
		ParamUploadType:   0,
	}}
}

// serve answers each received line on conn until it is closed.
func (d *device) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		if _, err := conn.Write([]byte(d.answer(strings.TrimRight(line, nl)))); err != nil {
			return
		}
	}
}

func (d *device) answer(cmd string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cmd != "" {
		d.received = append(d.received, cmd)
	}

	switch {
	case cmd == "":
		if d.sampling {
			return "<Executed/>" + nl
		}

		return promptText
	case cmd == CmdGetConfigurationData:
		return configurationXML(d.settings) + promptText
	case cmd == CmdGetStatusData:
		return statusXML + promptText
	case cmd == CmdGetEventCounterData:
		return eventCounterXML + promptText
	case cmd == CmdGetHardwareData:
		return hardwareXML + promptText
	case cmd == CmdSampleRefOsc:
		return refOscXML + promptText
	case cmd == CmdStart:
		d.sampling = true
		return "<Executed/>" + nl + sampleXML
	case cmd == CmdStop:
		d.sampling = false
		return promptText
	case cmd == CmdTestEeprom:
		return "<TestResult>PASS</TestResult>" + nl + promptText
	case strings.HasPrefix(cmd, CmdSetTime+"="):
		return promptText
	case strings.HasPrefix(cmd, "Set"):
		name, value, _ := strings.Cut(strings.TrimPrefix(cmd, "Set"), "=")
		if _, ok := d.settings[name]; !ok {
			return errorXML("unknown parameter " + name)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return errorXML("bad value " + value)
		}
		d.settings[name] = n

		return promptText
	default:
		return errorXML("unknown command " + cmd)
	}
}

func (d *device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.received...)
}

func (d *device) Setting(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.settings[name]
}

// decodeAll chunks data with the instrument matchers and decodes every frame.
func decodeAll(t *testing.T, data string) []*record.Sample {
	t.Helper()

	matchers, err := Matchers()
	require.NoError(t, err)
	c, err := chunker.New(matchers)
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	require.NoError(t, c.Feed([]byte(data)))

	var samples []*record.Sample
	for {
		f, ok := c.NextFrame()
		if !ok {
			return samples
		}

		s, err := dec.Decode(f)
		require.NoError(t, err, "frame %s", f.Kind)
		samples = append(samples, s)
	}
}

func utcDate(year int, month time.Month, day int) record.NTPTime {
	return record.NTPFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}
