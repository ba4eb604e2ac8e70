package record

import (
	"fmt"

	"github.com/arloliu/go-instrument/chunker"
)

// Rule decodes frames of one kind.
type Rule interface {
	Kind() chunker.Kind
	Decode(frame *chunker.Frame) (*Sample, error)
}

type validator interface {
	validate() error
}

// Decoder dispatches frames to the rule registered for their kind.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	rules map[chunker.Kind]Rule
	kinds []chunker.Kind
}

// NewDecoder creates a Decoder. Each kind may have one rule.
func NewDecoder(rules ...Rule) (*Decoder, error) {
	d := &Decoder{rules: make(map[chunker.Kind]Rule, len(rules))}

	for _, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("%w: nil rule", ErrInvalidRule)
		}

		if v, ok := r.(validator); ok {
			if err := v.validate(); err != nil {
				return nil, err
			}
		}

		if _, dup := d.rules[r.Kind()]; dup {
			return nil, fmt.Errorf("%w: duplicate rule for kind %s", ErrInvalidRule, r.Kind())
		}
		d.rules[r.Kind()] = r
		d.kinds = append(d.kinds, r.Kind())
	}

	return d, nil
}

// Decode turns frame into a Sample. Frames of a kind without a rule yield a
// DecodeError.
func (d *Decoder) Decode(frame *chunker.Frame) (*Sample, error) {
	if frame == nil {
		return nil, decodeErr("", nil, nil, "nil frame")
	}

	r, ok := d.rules[frame.Kind]
	if !ok {
		return nil, decodeErr(frame.Kind, frame, nil, "no rule for frame kind")
	}

	return r.Decode(frame)
}

// Handles reports whether a rule is registered for kind.
func (d *Decoder) Handles(kind chunker.Kind) bool {
	_, ok := d.rules[kind]
	return ok
}

// Kinds returns the registered kinds in registration order.
func (d *Decoder) Kinds() []chunker.Kind {
	return append([]chunker.Kind(nil), d.kinds...)
}
