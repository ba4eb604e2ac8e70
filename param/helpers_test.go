package param

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

const nl = "\r\n"

const dsResponse = "SBE 16plus V 2.2  SERIAL NO. 6841    29 Oct 2012 20:20:55" + nl +
	"vbatt = 12.9, vlith =  8.5, ioper =  61.2 ma, ipump = 255.5 ma," + nl +
	"status = not logging" + nl +
	"samples = 3684, free = 4382858" + nl +
	"sample interval = 10 seconds, number of measurements per sample = 4" + nl +
	"pump = run pump during sample, delay before sampling = 0.0 seconds" + nl +
	"transmit real-time = yes" + nl +
	"battery cutoff =  7.5 volts" + nl +
	"pressure sensor = strain gauge, range = 160.0" + nl +
	"echo characters = yes" + nl +
	"output format = raw HEX" + nl +
	"serial sync mode disabled" + nl

// sbe16Descriptors mirrors the SBE 16plus status dump parameters.
func sbe16Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name:     "Logging",
			Pattern:  regexp.MustCompile(`(?m)^status = (.+?)\r?$`),
			Type:     Bool,
			Phrases:  map[string]any{"not logging": false, "logging": true},
			ReadOnly: true,
		},
		{
			Name:    "SyncMode",
			Command: "SyncMode",
			Pattern: regexp.MustCompile(`(?m)^serial sync mode (.+?)\r?$`),
			Type:    Bool,
			Phrases: map[string]any{"disabled": false, "enabled": true},
		},
		{
			Name:         "SampleInterval",
			Command:      "SampleInterval",
			Pattern:      regexp.MustCompile(`sample interval = (\d+) seconds`),
			Type:         Int,
			DirectAccess: true,
		},
		{
			Name:         "BatteryCutoff",
			Command:      "SetVBatCutoff",
			Pattern:      regexp.MustCompile(`battery cutoff =\s+([\d.]+) volts`),
			Type:         Float,
			Precision:    1,
			DirectAccess: true,
		},
		{
			Name:         "TxRealTime",
			Command:      "TxRealTime",
			Pattern:      regexp.MustCompile(`transmit real-time = (yes|no)`),
			Type:         Bool,
			DirectAccess: true,
		},
		{
			Name:    "OutputFormat",
			Pattern: regexp.MustCompile(`(?m)^output format = (.+?)\r?$`),
			Type:    String,
		},
		{
			Name:    "Pump",
			Command: "PumpMode",
			Type:    Int,
			Default: 2,
		},
	}
}

func newTestDictionary(t *testing.T, opts ...Option) *Dictionary {
	t.Helper()

	d, err := NewDictionary(sbe16Descriptors(), opts...)
	require.NoError(t, err)

	return d
}

func mustGet(t *testing.T, d *Dictionary, name string) any {
	t.Helper()

	v, err := d.Get(name)
	require.NoError(t, err, name)

	return v
}
