package record

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arloliu/go-instrument/chunker"
)

// ntpUnixOffset is the number of seconds between 1900-01-01 and 1970-01-01 UTC.
const ntpUnixOffset = 2208988800

// NTPTime is a timestamp in seconds since 1900-01-01T00:00:00Z, the epoch
// used for every derived timestamp in a Sample.
type NTPTime float64

// NTPFromTime converts t to NTP seconds.
func NTPFromTime(t time.Time) NTPTime {
	return NTPTime(float64(t.Unix()+ntpUnixOffset) + float64(t.Nanosecond())/1e9)
}

// NTPFromUnix converts Unix seconds to NTP seconds.
func NTPFromUnix(sec float64) NTPTime {
	return NTPTime(sec + ntpUnixOffset)
}

// Time converts n back to a UTC time.
func (n NTPTime) Time() time.Time {
	sec, frac := math.Modf(float64(n) - ntpUnixOffset)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// Field is one named, typed value of a Sample.
type Field struct {
	Name string
	// Value holds an int64, float64, string, bool or NTPTime.
	Value any
}

// Sample is a decoded, typed record derived from one Frame. Fields keep the
// order in which the decode rule declares them; fields that were not found
// are absent rather than defaulted.
type Sample struct {
	Kind   chunker.Kind
	Fields []Field
	// Frame is the source frame, kept for diagnostics only.
	Frame *chunker.Frame
}

// Value returns the value of the named field.
func (s *Sample) Value(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return nil, false
}

// Has reports whether the named field is present.
func (s *Sample) Has(name string) bool {
	_, ok := s.Value(name)
	return ok
}

// Int returns the named field as int64.
func (s *Sample) Int(name string) (int64, bool) {
	v, ok := s.Value(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(int64)

	return i, ok
}

// Float returns the named field as float64. NTPTime and int64 values are
// converted.
func (s *Sample) Float(name string) (float64, bool) {
	v, ok := s.Value(name)
	if !ok {
		return 0, false
	}

	switch val := v.(type) {
	case float64:
		return val, true
	case NTPTime:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

// Text returns the named field as string.
func (s *Sample) Text(name string) (string, bool) {
	v, ok := s.Value(name)
	if !ok {
		return "", false
	}
	str, ok := v.(string)

	return str, ok
}

// Bool returns the named field as bool.
func (s *Sample) Bool(name string) (bool, bool) {
	v, ok := s.Value(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)

	return b, ok
}

// Map returns the fields as a map.
func (s *Sample) Map() map[string]any {
	m := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Value
	}

	return m
}

// String renders the sample as "kind{name=value ...}".
func (s *Sample) String() string {
	var sb strings.Builder
	sb.WriteString(string(s.Kind))
	sb.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%v", f.Name, f.Value)
	}
	sb.WriteByte('}')

	return sb.String()
}
