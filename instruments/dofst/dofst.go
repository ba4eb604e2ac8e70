// Package dofst parses DOFST-K oxygen files recovered from a wire following
// profiler.
//
// A file is a run of 11-byte engineering records, an end-of-profile marker
// of eleven 0xFF bytes and an 8-byte record holding the profile's time on
// and time off as big-endian Unix seconds. Record timestamps are spread
// evenly between the two.
package dofst

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/record"
)

// Frame kinds.
const (
	KindInstrument chunker.Kind = "dofst_k_wfp_instrument"
	KindMetadata   chunker.Kind = "dofst_k_wfp_metadata"
)

// Field names.
const (
	FieldOxygen        = "dofst_k_oxygen"
	FieldTimeOn        = "wfp_time_on"
	FieldTimeOff       = "wfp_time_off"
	FieldNumberSamples = "wfp_number_samples"
)

const (
	// RecordSize is the size of one engineering record.
	RecordSize = 11
	// TimeRecordSize is the size of the trailing time record.
	TimeRecordSize = record.DefaultTimeRecordSize
)

var endOfProfile = bytes.Repeat([]byte{0xFF}, RecordSize)

// ErrNoEndOfProfile indicates a file without the end-of-profile marker in
// front of the time record.
var ErrNoEndOfProfile = errors.New("dofst: missing end of profile marker")

// Reading is one decoded engineering record and its interpolated timestamp.
type Reading struct {
	Time   record.NTPTime
	Sample *record.Sample
}

// Profile is the content of one file.
type Profile struct {
	// Metadata holds time on, time off and the number of samples.
	Metadata *record.Sample
	Readings []Reading
}

// Parser decodes DOFST-K files.
type Parser struct {
	decoder  *record.Decoder
	metadata *record.MetadataRule
	logger   logger.Logger
}

// Option configures a Parser.
type Option interface {
	apply(*Parser) error
}

type optFunc func(*Parser) error

func (f optFunc) apply(p *Parser) error { return f(p) }

// WithLogger sets the parser logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(p *Parser) error {
		if l != nil {
			p.logger = l
		}

		return nil
	})
}

// NewParser returns a parser for DOFST-K files.
func NewParser(opts ...Option) (*Parser, error) {
	dec, err := record.NewDecoder(&record.BinaryRule{
		FrameKind: KindInstrument,
		Size:      RecordSize,
		Fields: []record.BinaryField{
			{Name: FieldOxygen, Offset: 9, Length: 2},
		},
	})
	if err != nil {
		return nil, err
	}

	p := &Parser{
		decoder: dec,
		metadata: &record.MetadataRule{
			FrameKind:   KindMetadata,
			TimeOnName:  FieldTimeOn,
			TimeOffName: FieldTimeOff,
			CountName:   FieldNumberSamples,
		},
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dofst: %w", err)
	}

	return p.Parse(data)
}

// ParseReader reads r to the end and parses it.
func (p *Parser) ParseReader(r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dofst: %w", err)
	}

	return p.Parse(data)
}

// Parse decodes a whole file. A file whose engineering data does not divide
// into whole records is rejected without readings.
func (p *Parser) Parse(data []byte) (*Profile, error) {
	tail := RecordSize + TimeRecordSize
	if len(data) < tail || !bytes.Equal(data[len(data)-tail:len(data)-TimeRecordSize], endOfProfile) {
		return nil, ErrNoEndOfProfile
	}

	body := data[:len(data)-tail]
	timeRecord := data[len(data)-TimeRecordSize:]

	meta, err := p.metadata.DecodePair(timeRecord, record.RecordCount(len(body), RecordSize))
	if err != nil {
		return nil, err
	}

	timeOn, _ := meta.Int(FieldTimeOn)
	timeOff, _ := meta.Int(FieldTimeOff)
	count, _ := meta.Int(FieldNumberSamples)

	if timeOff < timeOn {
		p.logger.Warn("dofst: time off precedes time on", "time_on", timeOn, "time_off", timeOff)
	}

	profile := &Profile{Metadata: meta, Readings: make([]Reading, 0, count)}
	if count == 0 {
		return profile, nil
	}

	step := float64(timeOff-timeOn) / float64(count)
	for i := 0; i < int(count); i++ {
		frame := &chunker.Frame{
			Kind: KindInstrument,
			Raw:  body[i*RecordSize : (i+1)*RecordSize],
			Seq:  uint64(i),
		}

		s, err := p.decoder.Decode(frame)
		if err != nil {
			return nil, err
		}

		profile.Readings = append(profile.Readings, Reading{
			Time:   record.NTPFromUnix(float64(timeOn) + float64(i)*step),
			Sample: s,
		})
	}

	p.logger.Debug("dofst: parsed profile", "samples", count, "time_on", timeOn, "time_off", timeOff)

	return profile, nil
}
