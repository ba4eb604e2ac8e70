package record

import (
	"math"

	"github.com/arloliu/go-instrument/chunker"
)

// DefaultTimeRecordSize is the size of a time-on/time-off pair of big-endian
// uint32 seconds.
const DefaultTimeRecordSize = 8

// MetadataRule decodes a derived-metadata pair: a binary time record holding
// two big-endian uint32 values and a sample count computed by the caller.
type MetadataRule struct {
	FrameKind   chunker.Kind
	TimeOnName  string
	TimeOffName string
	CountName   string
}

func (r *MetadataRule) Kind() chunker.Kind { return r.FrameKind }

// DecodePair decodes timeRecord and count. A count that is not a whole number
// means the source did not divide evenly into records and yields a
// DecodeError without any fields.
func (r *MetadataRule) DecodePair(timeRecord []byte, count float64) (*Sample, error) {
	if len(timeRecord) != DefaultTimeRecordSize {
		return nil, decodeErr(r.FrameKind, nil, nil, "time record length %d, expected %d", len(timeRecord), DefaultTimeRecordSize)
	}

	if math.IsNaN(count) || math.IsInf(count, 0) || count < 0 || count != math.Trunc(count) {
		return nil, decodeErr(r.FrameKind, nil, nil, "file does not evenly divide into records (count %v)", count)
	}

	return &Sample{
		Kind: r.FrameKind,
		Fields: []Field{
			{Name: r.TimeOnName, Value: BigEndian(timeRecord[0:4], false)},
			{Name: r.TimeOffName, Value: BigEndian(timeRecord[4:8], false)},
			{Name: r.CountName, Value: int64(count)},
		},
	}, nil
}

// RecordCount returns the number of records of recordSize bytes in dataLen
// bytes. The result is fractional when dataLen is not a multiple.
func RecordCount(dataLen int, recordSize int) float64 {
	if recordSize <= 0 {
		return math.NaN()
	}

	return float64(dataLen) / float64(recordSize)
}
