package record

import (
	"fmt"

	"github.com/arloliu/go-instrument/chunker"
)

// BinaryField is a big-endian integer at a fixed byte range.
type BinaryField struct {
	Name   string
	Offset int
	Length int // 1..8 bytes
	Signed bool
}

// BinaryRule decodes fixed-layout binary frames. The frame length must equal
// Size exactly; no offset is read otherwise.
type BinaryRule struct {
	FrameKind chunker.Kind
	Size      int
	Fields    []BinaryField
}

var _ Rule = (*BinaryRule)(nil)

func (r *BinaryRule) Kind() chunker.Kind { return r.FrameKind }

func (r *BinaryRule) validate() error {
	if r.Size <= 0 {
		return fmt.Errorf("%w: binary rule %s has size %d", ErrInvalidRule, r.FrameKind, r.Size)
	}

	for _, f := range r.Fields {
		if f.Length < 1 || f.Length > 8 {
			return fmt.Errorf("%w: field %s length %d out of range [1, 8]", ErrInvalidRule, f.Name, f.Length)
		}
		if f.Offset < 0 || f.Offset+f.Length > r.Size {
			return fmt.Errorf("%w: field %s [%d:%d] exceeds record size %d",
				ErrInvalidRule, f.Name, f.Offset, f.Offset+f.Length, r.Size)
		}
	}

	return nil
}

func (r *BinaryRule) Decode(frame *chunker.Frame) (*Sample, error) {
	if len(frame.Raw) != r.Size {
		return nil, decodeErr(r.FrameKind, frame, nil, "record length %d, expected %d", len(frame.Raw), r.Size)
	}

	fields := make([]Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, Field{Name: f.Name, Value: BigEndian(frame.Raw[f.Offset:f.Offset+f.Length], f.Signed)})
	}

	return &Sample{Kind: r.FrameKind, Fields: fields, Frame: frame}, nil
}

// BigEndian interprets b (at most 8 bytes) as a big-endian integer,
// sign-extending when signed is set.
func BigEndian(b []byte, signed bool) int64 {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}

	if signed && len(b) > 0 && len(b) < 8 {
		shift := 64 - 8*uint(len(b))
		return int64(u<<shift) >> shift
	}

	return int64(u)
}
