// Package sbe54 describes the Sea-Bird SBE 54 tsunami pressure sensor.
//
// The instrument answers every command with an XML document followed by
// "<Executed/>" and the "S>" prompt. Status comes in four documents
// (GetCD, GetSD, GetEC, GetHD); pressure samples arrive as <Sample> elements,
// either polled or while logging.
package sbe54

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/param"
	"github.com/arloliu/go-instrument/protocol"
	"github.com/arloliu/go-instrument/record"
)

// Name identifies the instrument.
const Name = "sbe54tps"

// Frame kinds.
const (
	KindStatus        chunker.Kind = "sbe54tps_status"
	KindConfiguration chunker.Kind = "sbe54tps_configuration"
	KindEventCounter  chunker.Kind = "sbe54tps_event_counter"
	KindHardware      chunker.Kind = "sbe54tps_hardware"
	KindSample        chunker.Kind = "sbe54tps_sample"
)

// Device commands.
const (
	CmdGetConfigurationData = "GetCD"
	CmdGetStatusData        = "GetSD"
	CmdGetEventCounterData  = "GetEC"
	CmdGetHardwareData      = "GetHD"
	CmdSampleRefOsc         = "SampleRefOsc"
	CmdStart                = "Start"
	CmdStop                 = "Stop"
	CmdSetTime              = "SetTime"
	CmdTestEeprom           = "TestEeprom"
)

// Parameter names.
const (
	ParamBatteryType  = "BatteryType"
	ParamBaudRate     = "BaudRate"
	ParamEnableAlerts = "EnableAlerts"
	ParamUploadType   = "UploadType"
	ParamSamplePeriod = "SamplePeriod"
)

const (
	newline = "\r\n"

	// TimeLayout is the device clock format, e.g. 2012-11-13T17:56:42.
	TimeLayout = "2006-01-02T15:04:05"
	// dateLayout is the calibration date format, e.g. 2012-02-20.
	dateLayout = "2006-01-02"
	// buildDateLayout is the firmware and manufacture date format, e.g. Mar 22 2007.
	buildDateLayout = "Jan 2 2006"
)

// Prompts.
var (
	PromptCommand    = regexp.MustCompile(`<Executed/>\r\nS>`)
	PromptAutosample = regexp.MustCompile(`<Executed/>\r\n`)
	PromptError      = regexp.MustCompile(`<Error.*?\r\n<Executed/>\r\n(?:S>)?`)
	PromptConfirm    = regexp.MustCompile(`(?i)proceed Y/N \?`)
)

const float = `([0-9Ee+.-]+)`

// Matchers returns the frame matchers in priority order. The status document
// embeds an <EventSummary/> element; only the GetEC reply carries maxStack.
func Matchers() ([]chunker.Matcher, error) {
	events, err := chunker.NewRegexMatcher(KindEventCounter,
		`<EventSummary numEvents='\d+' maxStack='\d+'/>[\s\S]*?</EventList>`,
		`<EventSummary numEvents='\d+' maxStack`)
	if err != nil {
		return nil, err
	}

	return []chunker.Matcher{
		chunker.NewDelimitedMatcher(KindStatus, "<StatusData DeviceType=", "</StatusData>"),
		chunker.NewDelimitedMatcher(KindConfiguration, "<ConfigurationData DeviceType=", "</ConfigurationData>"),
		events,
		chunker.NewDelimitedMatcher(KindHardware, "<HardwareData DeviceType=", "</HardwareData>"),
		chunker.NewDelimitedMatcher(KindSample, "<Sample Num=", "</Sample>"),
	}, nil
}

func statusRule() *record.TextRule {
	return &record.TextRule{
		FrameKind: KindStatus,
		Fields: []record.FieldRule{
			record.TextField("device_type", `StatusData DeviceType='([^']+)'`, record.String),
			record.TextField("serial_number", `SerialNumber='(\d+)'`, record.Int).Must(),
			record.DateField("date_time", `<DateTime>([^<]+)</DateTime>`, TimeLayout),
			record.TextField("event_count", `<EventSummary numEvents='(\d+)'/>`, record.Int),
			record.TextField("main_supply_voltage", `<MainSupplyVoltage>([0-9.]+)</MainSupplyVoltage>`, record.Float),
			record.TextField("number_of_samples", `<Samples>(\d+)</Samples>`, record.Int),
			record.TextField("bytes_used", `<Bytes>(\d+)</Bytes>`, record.Int),
			record.TextField("bytes_free", `<BytesFree>(\d+)</BytesFree>`, record.Int),
		},
	}
}

func configurationRule() *record.TextRule {
	fields := []record.FieldRule{
		record.TextField("device_type", `ConfigurationData DeviceType='([^']+)'`, record.String),
		record.TextField("serial_number", `SerialNumber='(\d+)'>`, record.Int).Must(),
		record.DateField("acq_osc_cal_date", `<AcqOscCalDate>([0-9-]+)</AcqOscCalDate>`, dateLayout),
	}

	for _, c := range []string{"FRA0", "FRA1", "FRA2", "FRA3"} {
		fields = append(fields, record.TextField(strings.ToLower(c), `<`+c+`>`+float+`</`+c+`>`, record.Float))
	}

	fields = append(fields,
		record.TextField("pressure_serial_num", `<PressureSerialNum>(\d+)</PressureSerialNum>`, record.Int),
		record.DateField("pressure_cal_date", `<PressureCalDate>([0-9-]+)</PressureCalDate>`, dateLayout),
	)

	for _, c := range []string{"pu0", "py1", "py2", "py3", "pc1", "pc2", "pc3", "pd1", "pd2", "pt1", "pt2", "pt3", "pt4", "poffset", "prange"} {
		fields = append(fields, record.TextField(c, `<`+c+`>`+float+`</`+c+`>`, record.Float))
	}

	fields = append(fields,
		record.TextField("battery_type", `batteryType='(\d+)'`, record.Int),
		record.TextField("baud_rate", `baudRate='(\d+)'`, record.Int),
		record.TextField("enable_alerts", `enableAlerts='(\d+)'`, record.Int),
		record.TextField("upload_type", `uploadType='(\d+)'`, record.Int),
		record.TextField("sample_period", `samplePeriod='(\d+)'`, record.Int),
	)

	return &record.TextRule{FrameKind: KindConfiguration, Fields: fields}
}

var eventTypes = []struct{ device, field string }{
	{"PowerOnReset", "power_on_reset"},
	{"PowerFailReset", "power_fail_reset"},
	{"SerialByteErr", "serial_byte_error"},
	{"CMDBuffOflow", "command_buffer_overflow"},
	{"SerialRxOflow", "serial_receive_overflow"},
	{"LowBattery", "low_battery"},
	{"SignalErr", "signal_error"},
	{"Error10", "error_10"},
	{"Error12", "error_12"},
}

func eventCounterRule() *record.TextRule {
	fields := []record.FieldRule{
		record.TextField("number_events", `EventSummary numEvents='(\d+)'`, record.Int).Must(),
		record.TextField("max_stack", `maxStack='(\d+)'/>`, record.Int),
		record.TextField("device_type", `<EventList DeviceType='([^']+)'`, record.String),
		record.TextField("serial_number", `SerialNumber='(\d+)'>`, record.Int),
	}

	for _, ev := range eventTypes {
		fields = append(fields, record.TextField(ev.field, `<Event type='`+ev.device+`' count='(\d+)'/>`, record.Int))
	}

	return &record.TextRule{FrameKind: KindEventCounter, Fields: fields}
}

func hardwareRule() *record.TextRule {
	return &record.TextRule{
		FrameKind: KindHardware,
		Fields: []record.FieldRule{
			record.TextField("device_type", `HardwareData DeviceType='([^']+)'`, record.String),
			record.TextField("serial_number", `SerialNumber='(\d+)'>`, record.Int).Must(),
			record.TextField("manufacturer", `<Manufacturer>([^<]+)</Manufacturer>`, record.String),
			record.TextField("firmware_version", `<FirmwareVersion>([^<]+)</FirmwareVersion>`, record.String),
			record.DateField("firmware_date", `<FirmwareDate>([^<]+)</FirmwareDate>`, buildDateLayout),
			record.TextField("hardware_version", `<HardwareVersion>([^<]+)</HardwareVersion>`, record.String),
			record.TextField("pcb_serial_number", `<PCBSerialNum>([^<]+)</PCBSerialNum>`, record.String),
			record.TextField("pcb_type", `<PCBType>([^<]+)</PCBType>`, record.String),
			record.DateField("manufacture_date", `<MfgDate>([^<]+)</MfgDate>`, buildDateLayout),
		},
	}
}

func sampleRule() *record.TextRule {
	return &record.TextRule{
		FrameKind: KindSample,
		Fields: []record.FieldRule{
			record.TextField("sample_number", `<Sample Num='(\d+)'`, record.Int).Must(),
			record.TextField("sample_type", `Type='([^']+)'>`, record.String).Must(),
			record.DateField("inst_time", `<Time>([^<]+)</Time>`, TimeLayout).Must(),
			record.TextField("pressure", `<PressurePSI>([0-9.+-]+)</PressurePSI>`, record.Float),
			record.TextField("pressure_temp", `<PTemp>([0-9.+-]+)</PTemp>`, record.Float),
			// reference oscillator samples
			record.TextField("ref_osc_freq", `<RefOscFreq>([0-9.+-]+)</RefOscFreq>`, record.Float),
			record.TextField("pcb_temp_raw", `<PCBTempRaw>(\d+)</PCBTempRaw>`, record.Int),
			record.TextField("ref_error", `<RefErr>(\d+)</RefErr>`, record.Int),
		},
	}
}

// NewDecoder returns the decoder for all five document kinds.
func NewDecoder() (*record.Decoder, error) {
	return record.NewDecoder(statusRule(), configurationRule(), eventCounterRule(), hardwareRule(), sampleRule())
}

// Descriptors returns the parameter table. All values are read from the
// <Settings/> element of the configuration document.
func Descriptors() []param.Descriptor {
	return []param.Descriptor{
		{
			Name:         ParamSamplePeriod,
			Command:      "SetSamplePeriod",
			Pattern:      regexp.MustCompile(`samplePeriod='(\d+)'`),
			Type:         param.Int,
			DirectAccess: true,
		},
		{
			Name:         ParamBatteryType,
			Command:      "SetBatteryType",
			Pattern:      regexp.MustCompile(`batteryType='(\d+)'`),
			Type:         param.Int,
			DirectAccess: true,
		},
		{
			Name:         ParamEnableAlerts,
			Command:      "SetEnableAlerts",
			Pattern:      regexp.MustCompile(`enableAlerts='(\d+)'`),
			Type:         param.Bool,
			Phrases:      map[string]any{"1": true, "0": false},
			DirectAccess: true,
		},
		{
			Name:    ParamUploadType,
			Command: "SetUploadType",
			Pattern: regexp.MustCompile(`uploadType='(\d+)'`),
			Type:    param.Int,
		},
		{
			Name:     ParamBaudRate,
			Pattern:  regexp.MustCompile(`baudRate='(\d+)'`),
			Type:     param.Int,
			ReadOnly: true,
		},
	}
}

// NewParams returns the parameter dictionary. UploadType is always restored
// to 0 when direct access ends.
func NewParams(opts ...param.Option) (*param.Dictionary, error) {
	opts = append([]param.Option{param.WithForcedRestore(ParamUploadType, 0)}, opts...)

	return param.NewDictionary(Descriptors(), opts...)
}

// Capabilities returns the complete capability set of the SBE 54.
func Capabilities(opts ...param.Option) (*protocol.Capabilities, error) {
	matchers, err := Matchers()
	if err != nil {
		return nil, fmt.Errorf("sbe54: %w", err)
	}

	dec, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("sbe54: %w", err)
	}

	params, err := NewParams(opts...)
	if err != nil {
		return nil, fmt.Errorf("sbe54: %w", err)
	}

	return &protocol.Capabilities{
		Name:             Name,
		Matchers:         matchers,
		Decoder:          dec,
		Params:           params,
		ParamKinds:       []chunker.Kind{KindConfiguration},
		Newline:          newline,
		Prompt:           PromptCommand,
		AutosamplePrompt: PromptAutosample,
		ErrorPrompt:      PromptError,
		ConfirmPrompt:    PromptConfirm,
		ConfirmReply:     "Y",
		StatusCommands: []string{
			CmdGetConfigurationData,
			CmdGetStatusData,
			CmdGetEventCounterData,
			CmdGetHardwareData,
		},
		SampleCommand: CmdSampleRefOsc,
		StartCommand:  CmdStart,
		StopCommand:   CmdStop,
		TestCommands:  []string{CmdTestEeprom},
		ClockSync:     protocol.ClockSync{Command: CmdSetTime, Layout: TimeLayout},
	}, nil
}
