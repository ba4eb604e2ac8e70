package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-instrument/chunker"
)

// FieldType selects how captured text is coerced.
type FieldType int

const (
	// String keeps the captured text.
	String FieldType = iota
	// Int parses a base-10 integer into int64.
	Int
	// HexInt parses a base-16 integer into int64.
	HexInt
	// Float parses a float64.
	Float
	// Bool accepts yes/no, true/false and y/n, case-insensitively.
	Bool
	// DateTime parses the capture with FieldRule.Layout and yields NTPTime.
	DateTime
)

var fieldTypeNames = map[FieldType]string{
	String:   "string",
	Int:      "int",
	HexInt:   "hex",
	Float:    "float",
	Bool:     "bool",
	DateTime: "datetime",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}

	return "FieldType(" + strconv.Itoa(int(t)) + ")"
}

// ParseFieldType converts a type name as produced by FieldType.String.
func ParseFieldType(name string) (FieldType, error) {
	for t, n := range fieldTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}

	return String, fmt.Errorf("%w: unknown field type %q", ErrInvalidRule, name)
}

// FieldRule binds a capturing pattern to a target field. The first capture
// group is coerced; a pattern without groups uses the whole match.
type FieldRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Type     FieldType
	Layout   string // time layout for DateTime
	Required bool
}

// TextField builds a FieldRule from a pattern that must compile. It is meant
// for static rule tables.
func TextField(name string, pattern string, typ FieldType) FieldRule {
	return FieldRule{Name: name, Pattern: regexp.MustCompile(pattern), Type: typ}
}

// DateField builds a DateTime FieldRule parsed with layout.
func DateField(name string, pattern string, layout string) FieldRule {
	return FieldRule{Name: name, Pattern: regexp.MustCompile(pattern), Type: DateTime, Layout: layout}
}

// CompileField builds a FieldRule from configuration input.
func CompileField(name string, pattern string, typ FieldType, layout string) (FieldRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return FieldRule{}, fmt.Errorf("%w: field %s: %w", ErrInvalidRule, name, err)
	}

	return FieldRule{Name: name, Pattern: re, Type: typ, Layout: layout}, nil
}

// Must marks the field as required.
func (r FieldRule) Must() FieldRule {
	r.Required = true
	return r
}

// Coerce converts captured text into the field's type.
func (r FieldRule) Coerce(text string) (any, error) {
	return coerce(strings.TrimSpace(text), r.Type, r.Layout)
}

// TextRule decodes text or XML frames of one kind by applying its field
// rules, in order, over the whole frame.
type TextRule struct {
	FrameKind chunker.Kind
	Fields    []FieldRule
	// AllRequired makes every field mandatory.
	AllRequired bool
}

var _ Rule = (*TextRule)(nil)

func (r *TextRule) Kind() chunker.Kind { return r.FrameKind }

func (r *TextRule) validate() error {
	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: text rule %s has no fields", ErrInvalidRule, r.FrameKind)
	}

	for _, f := range r.Fields {
		if f.Name == "" || f.Pattern == nil {
			return fmt.Errorf("%w: text rule %s has a field without name or pattern", ErrInvalidRule, r.FrameKind)
		}
		if f.Type == DateTime && f.Layout == "" {
			return fmt.Errorf("%w: field %s needs a time layout", ErrInvalidRule, f.Name)
		}
	}

	return nil
}

func (r *TextRule) Decode(frame *chunker.Frame) (*Sample, error) {
	fields := make([]Field, 0, len(r.Fields))
	var missing []string

	for _, fr := range r.Fields {
		m := fr.Pattern.FindSubmatch(frame.Raw)
		if m == nil {
			if fr.Required || r.AllRequired {
				missing = append(missing, fr.Name)
			}
			continue
		}

		capture := m[0]
		if len(m) > 1 {
			capture = m[1]
		}

		v, err := fr.Coerce(string(capture))
		if err != nil {
			return nil, decodeErr(r.FrameKind, frame, err, "field %s: bad value %q", fr.Name, capture)
		}
		fields = append(fields, Field{Name: fr.Name, Value: v})
	}

	if len(missing) > 0 {
		return nil, decodeErr(r.FrameKind, frame, nil, "missing fields %s", strings.Join(missing, ", "))
	}

	return &Sample{Kind: r.FrameKind, Fields: fields, Frame: frame}, nil
}

func coerce(text string, typ FieldType, layout string) (any, error) {
	switch typ {
	case String:
		return text, nil
	case Int:
		return strconv.ParseInt(text, 10, 64)
	case HexInt:
		return strconv.ParseInt(text, 16, 64)
	case Float:
		return strconv.ParseFloat(text, 64)
	case Bool:
		return parseBool(text)
	case DateTime:
		t, err := time.Parse(layout, text)
		if err != nil {
			return nil, err
		}

		return NTPFromTime(t), nil
	default:
		return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidRule, int(typ))
	}
}

func parseBool(text string) (bool, error) {
	switch strings.ToLower(text) {
	case "yes", "true", "y":
		return true, nil
	case "no", "false", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", text)
	}
}
