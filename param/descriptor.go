package param

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Type is the declared value type of a parameter.
type Type int

const (
	// Int values are stored as int64.
	Int Type = iota
	// Float values are stored as float64.
	Float
	// Bool values are stored as bool.
	Bool
	// String values are stored as string.
	String
)

var typeNames = map[Type]string{
	Int:    "int",
	Float:  "float",
	Bool:   "bool",
	String: "string",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType converts a type name as produced by Type.String.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}

	return Int, fmt.Errorf("param: unknown type %q", name)
}

// Descriptor is the decode/encode contract for one device parameter.
type Descriptor struct {
	// Name identifies the parameter.
	Name string
	// Command is the set-command keyword; the command is "Command=value".
	Command string
	// Pattern finds the parameter in a status dump. The first capture group
	// holds the value text.
	Pattern *regexp.Regexp
	Type    Type
	// Phrases maps exact captured phrases to values. A phrase missing from the
	// map leaves the current value unchanged. Format uses the reverse mapping.
	Phrases map[string]any
	// Precision is the number of decimals Format writes for Float values;
	// zero selects the shortest exact representation.
	Precision    int
	ReadOnly     bool
	DirectAccess bool
	// Default seeds the current value; nil leaves it unknown.
	Default any

	// FormatFunc and ParseFunc replace the type based encoding. They must be
	// inverses of each other.
	FormatFunc func(v any) (string, error)
	ParseFunc  func(text string) (any, error)
}

// normalize checks v against the declared type and returns the canonical
// stored form.
func (d *Descriptor) normalize(v any) (any, bool) {
	switch d.Type {
	case Int:
		switch n := v.(type) {
		case int:
			return int64(n), true
		case int8:
			return int64(n), true
		case int16:
			return int64(n), true
		case int32:
			return int64(n), true
		case int64:
			return n, true
		case uint8:
			return int64(n), true
		case uint16:
			return int64(n), true
		case uint32:
			return int64(n), true
		case uint:
			if uint64(n) <= math.MaxInt64 {
				return int64(n), true
			}
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), true
			}
		}
	case Float:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, true
		}
	case String:
		if s, ok := v.(string); ok {
			return s, true
		}
	}

	return nil, false
}

func (d *Descriptor) format(v any) (string, error) {
	if d.FormatFunc != nil {
		return d.FormatFunc(v)
	}

	if len(d.Phrases) > 0 {
		if phrase, ok := d.phraseFor(v); ok {
			return phrase, nil
		}
	}

	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if d.Precision > 0 {
			return strconv.FormatFloat(val, 'f', d.Precision, 64), nil
		}

		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		if val {
			return "y", nil
		}

		return "n", nil
	case string:
		return val, nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// phraseFor returns the shortest phrase mapped to v, so the choice is stable
// when several phrases share a value.
func (d *Descriptor) phraseFor(v any) (string, bool) {
	best, found := "", false
	for phrase, pv := range d.Phrases {
		if norm, ok := d.normalize(pv); !ok || norm != v {
			continue
		}

		if !found || len(phrase) < len(best) || (len(phrase) == len(best) && phrase < best) {
			best, found = phrase, true
		}
	}

	return best, found
}

func (d *Descriptor) parse(text string) (any, error) {
	if d.ParseFunc != nil {
		v, err := d.ParseFunc(text)
		if err != nil {
			return nil, err
		}
		norm, ok := d.normalize(v)
		if !ok {
			return nil, fmt.Errorf("parse func returned %T, want %s", v, d.Type)
		}

		return norm, nil
	}

	text = strings.TrimSpace(text)

	if len(d.Phrases) > 0 {
		v, ok := d.Phrases[text]
		if !ok {
			return nil, ErrUnknownPhrase
		}
		norm, ok := d.normalize(v)
		if !ok {
			return nil, fmt.Errorf("phrase %q maps to %T, want %s", text, v, d.Type)
		}

		return norm, nil
	}

	switch d.Type {
	case Int:
		return strconv.ParseInt(text, 10, 64)
	case Float:
		return strconv.ParseFloat(text, 64)
	case Bool:
		switch strings.ToLower(text) {
		case "y", "yes", "true":
			return true, nil
		case "n", "no", "false":
			return false, nil
		}

		return nil, fmt.Errorf("invalid boolean %q", text)
	case String:
		return text, nil
	default:
		return nil, fmt.Errorf("unknown type %s", d.Type)
	}
}
