// Package profile loads instrument capability sets from YAML documents.
//
// A profile describes everything the protocol core needs to drive an
// instrument: frame matchers, record rules, the parameter table, prompts and
// the command set. Build turns a parsed profile into protocol.Capabilities.
package profile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/param"
	"github.com/arloliu/go-instrument/protocol"
	"github.com/arloliu/go-instrument/record"
)

// ErrInvalidProfile is returned for profiles that parse but cannot be built.
var ErrInvalidProfile = errors.New("profile: invalid profile")

// Profile is the YAML form of an instrument capability set.
type Profile struct {
	Name    string `yaml:"name"`
	Newline string `yaml:"newline"`
	Wakeup  string `yaml:"wakeup"`

	Prompts  Prompts   `yaml:"prompts"`
	Commands Commands  `yaml:"commands"`
	Frames   []Frame   `yaml:"frames"`
	Records  []Record  `yaml:"records"`
	Params   []Param   `yaml:"params"`
	Forced   yaml.Node `yaml:"forced_restore"`
}

// Prompts holds the response patterns of an instrument.
type Prompts struct {
	Command    string `yaml:"command"`
	Autosample string `yaml:"autosample"`
	Error      string `yaml:"error"`
	Confirm    string `yaml:"confirm"`
	// ConfirmReply answers a matched Confirm prompt.
	ConfirmReply string `yaml:"confirm_reply"`
}

// Commands lists the instrument's command keywords.
type Commands struct {
	Status []string `yaml:"status"`
	Sample string   `yaml:"sample"`
	Start  string   `yaml:"start"`
	Stop   string   `yaml:"stop"`
	Test   []string `yaml:"test"`
	// Set is a format with two %s verbs, keyword then value; empty means
	// "keyword=value".
	Set       string     `yaml:"set"`
	ClockSync *ClockSync `yaml:"clock_sync"`
}

type ClockSync struct {
	Command string `yaml:"command"`
	Layout  string `yaml:"layout"`
}

// Frame is one frame matcher, in priority order.
//
//	type: delimited  start, end
//	type: regex      pattern, start_hint
//	type: fixed      length, sync (hex), checksum (sum)
type Frame struct {
	Kind      string `yaml:"kind"`
	Type      string `yaml:"type"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Pattern   string `yaml:"pattern"`
	StartHint string `yaml:"start_hint"`
	Length    int    `yaml:"length"`
	Sync      string `yaml:"sync"`
	Checksum  string `yaml:"checksum"`
	// Params routes the frame text to the parameter dictionary.
	Params bool `yaml:"params"`
}

// Record is the decode rule of one frame kind. Text rules list Fields,
// binary rules list Binary fields and a Size.
type Record struct {
	Kind        string        `yaml:"kind"`
	AllRequired bool          `yaml:"all_required"`
	Fields      []Field       `yaml:"fields"`
	Size        int           `yaml:"size"`
	Binary      []BinaryField `yaml:"binary"`
}

type Field struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Type     string `yaml:"type"`
	Layout   string `yaml:"layout"`
	Required bool   `yaml:"required"`
}

type BinaryField struct {
	Name   string `yaml:"name"`
	Offset int    `yaml:"offset"`
	Length int    `yaml:"length"`
	Signed bool   `yaml:"signed"`
}

// Param is one parameter descriptor.
type Param struct {
	Name         string         `yaml:"name"`
	Command      string         `yaml:"command"`
	Pattern      string         `yaml:"pattern"`
	Type         string         `yaml:"type"`
	Phrases      map[string]any `yaml:"phrases"`
	Precision    int            `yaml:"precision"`
	ReadOnly     bool           `yaml:"read_only"`
	DirectAccess bool           `yaml:"direct_access"`
	Default      any            `yaml:"default"`

	// CommandValues maps values, spelled as in YAML, to their set-command
	// text when it differs from the status text.
	CommandValues map[string]string `yaml:"command_values"`
}

// Parse decodes a YAML profile. Unknown keys are rejected.
func Parse(data []byte) (*Profile, error) {
	return Load(bytes.NewReader(data))
}

// Load decodes a YAML profile from r.
func Load(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}

	if p.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}

	return &p, nil
}

// LoadFile reads and decodes the profile at path.
func LoadFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Build compiles the profile into capabilities. The logger is passed to the
// parameter dictionary; nil selects the default logger.
func (p *Profile) Build(l logger.Logger) (*protocol.Capabilities, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	caps := &protocol.Capabilities{
		Name:           p.Name,
		Newline:        p.Newline,
		Wakeup:         p.Wakeup,
		ConfirmReply:   p.Prompts.ConfirmReply,
		StatusCommands: p.Commands.Status,
		SampleCommand:  p.Commands.Sample,
		StartCommand:   p.Commands.Start,
		StopCommand:    p.Commands.Stop,
		TestCommands:   p.Commands.Test,
	}

	var err error
	if caps.Prompt, err = compileOptional("command prompt", p.Prompts.Command); err != nil {
		return nil, err
	}
	if caps.AutosamplePrompt, err = compileOptional("autosample prompt", p.Prompts.Autosample); err != nil {
		return nil, err
	}
	if caps.ErrorPrompt, err = compileOptional("error prompt", p.Prompts.Error); err != nil {
		return nil, err
	}
	if caps.ConfirmPrompt, err = compileOptional("confirm prompt", p.Prompts.Confirm); err != nil {
		return nil, err
	}

	if cs := p.Commands.ClockSync; cs != nil {
		if cs.Command == "" || cs.Layout == "" {
			return nil, fmt.Errorf("%w: clock_sync needs command and layout", ErrInvalidProfile)
		}
		caps.ClockSync = protocol.ClockSync{Command: cs.Command, Layout: cs.Layout}
	}

	if p.Commands.Set != "" && strings.Count(p.Commands.Set, "%s") != 2 {
		return nil, fmt.Errorf("%w: set format %q needs two %%s verbs", ErrInvalidProfile, p.Commands.Set)
	}

	for i := range p.Frames {
		m, err := p.Frames[i].matcher()
		if err != nil {
			return nil, err
		}
		caps.Matchers = append(caps.Matchers, m)

		if p.Frames[i].Params {
			caps.ParamKinds = append(caps.ParamKinds, chunker.Kind(p.Frames[i].Kind))
		}
	}

	rules := make([]record.Rule, 0, len(p.Records))
	for i := range p.Records {
		rule, err := p.Records[i].rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if caps.Decoder, err = record.NewDecoder(rules...); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}

	descs := make([]param.Descriptor, 0, len(p.Params))
	for i := range p.Params {
		desc, err := p.Params[i].descriptor()
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}

	forced, err := p.forced(descs)
	if err != nil {
		return nil, err
	}

	opts := append([]param.Option{param.WithLogger(l)}, forced...)
	if caps.Params, err = param.NewDictionary(descs, opts...); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}

	if format := p.Commands.Set; format != "" {
		dict := caps.Params
		caps.SetCommand = func(name string, value any) (string, error) {
			cmd, err := dict.Command(name, value)
			if err != nil {
				return "", err
			}
			keyword, text, _ := strings.Cut(cmd, "=")

			return fmt.Sprintf(format, keyword, text), nil
		}
	}

	return caps, nil
}

// forced keeps the YAML key order of forced_restore so the option order is
// stable.
func (p *Profile) forced(descs []param.Descriptor) ([]param.Option, error) {
	if p.Forced.Kind == 0 {
		return nil, nil
	}
	if p.Forced.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: forced_restore must be a mapping", ErrInvalidProfile)
	}

	types := make(map[string]param.Type, len(descs))
	for _, d := range descs {
		types[d.Name] = d.Type
	}

	opts := make([]param.Option, 0, len(p.Forced.Content)/2)
	for i := 0; i+1 < len(p.Forced.Content); i += 2 {
		name := p.Forced.Content[i].Value

		var v any
		if err := p.Forced.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("profile: forced_restore %s: %w", name, err)
		}

		opts = append(opts, param.WithForcedRestore(name, widen(types[name], v)))
	}

	return opts, nil
}

func (f *Frame) matcher() (chunker.Matcher, error) {
	if f.Kind == "" {
		return nil, fmt.Errorf("%w: frame without kind", ErrInvalidProfile)
	}
	kind := chunker.Kind(f.Kind)

	switch strings.ToLower(f.Type) {
	case "delimited":
		if f.Start == "" || f.End == "" {
			return nil, fmt.Errorf("%w: delimited frame %s needs start and end", ErrInvalidProfile, f.Kind)
		}

		return chunker.NewDelimitedMatcher(kind, f.Start, f.End), nil

	case "regex":
		m, err := chunker.NewRegexMatcher(kind, f.Pattern, f.StartHint)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %s: %w", ErrInvalidProfile, f.Kind, err)
		}

		return m, nil

	case "fixed":
		if f.Length <= 0 {
			return nil, fmt.Errorf("%w: fixed frame %s needs a positive length", ErrInvalidProfile, f.Kind)
		}

		sync, err := hex.DecodeString(f.Sync)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %s sync: %w", ErrInvalidProfile, f.Kind, err)
		}

		m := &chunker.FixedLengthMatcher{FrameKind: kind, Sync: sync, Length: f.Length}
		switch strings.ToLower(f.Checksum) {
		case "":
		case "sum":
			m.Checksum = chunker.SumChecksum()
		default:
			return nil, fmt.Errorf("%w: frame %s: unknown checksum %q", ErrInvalidProfile, f.Kind, f.Checksum)
		}

		return m, nil

	default:
		return nil, fmt.Errorf("%w: frame %s: unknown type %q", ErrInvalidProfile, f.Kind, f.Type)
	}
}

func (r *Record) rule() (record.Rule, error) {
	kind := chunker.Kind(r.Kind)

	if len(r.Binary) > 0 {
		fields := make([]record.BinaryField, 0, len(r.Binary))
		for _, f := range r.Binary {
			fields = append(fields, record.BinaryField{Name: f.Name, Offset: f.Offset, Length: f.Length, Signed: f.Signed})
		}

		return &record.BinaryRule{FrameKind: kind, Size: r.Size, Fields: fields}, nil
	}

	fields := make([]record.FieldRule, 0, len(r.Fields))
	for _, f := range r.Fields {
		typ := record.String
		if f.Type != "" {
			var err error
			if typ, err = record.ParseFieldType(f.Type); err != nil {
				return nil, fmt.Errorf("record %s: %w", r.Kind, err)
			}
		}

		fr, err := record.CompileField(f.Name, f.Pattern, typ, f.Layout)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Kind, err)
		}
		if f.Required {
			fr = fr.Must()
		}
		fields = append(fields, fr)
	}

	return &record.TextRule{FrameKind: kind, Fields: fields, AllRequired: r.AllRequired}, nil
}

func (p *Param) descriptor() (param.Descriptor, error) {
	typ := param.String
	if p.Type != "" {
		var err error
		if typ, err = param.ParseType(p.Type); err != nil {
			return param.Descriptor{}, fmt.Errorf("%w: param %s: %w", ErrInvalidProfile, p.Name, err)
		}
	}

	desc := param.Descriptor{
		Name:         p.Name,
		Command:      p.Command,
		Type:         typ,
		Precision:    p.Precision,
		ReadOnly:     p.ReadOnly,
		DirectAccess: p.DirectAccess,
		Default:      widen(typ, p.Default),
	}

	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return param.Descriptor{}, fmt.Errorf("%w: param %s: %w", ErrInvalidProfile, p.Name, err)
		}
		desc.Pattern = re
	}

	if len(p.Phrases) > 0 {
		desc.Phrases = make(map[string]any, len(p.Phrases))
		for phrase, v := range p.Phrases {
			desc.Phrases[phrase] = widen(typ, v)
		}
	}

	if len(p.CommandValues) > 0 {
		if err := p.commandValues(&desc); err != nil {
			return param.Descriptor{}, err
		}
	}

	return desc, nil
}

// commandValues installs a FormatFunc writing the command_values texts and
// the matching ParseFunc. Parsing accepts the command texts first, then the
// status phrases, then the plain typed form.
func (p *Param) commandValues(desc *param.Descriptor) error {
	name, typ, phrases := p.Name, desc.Type, desc.Phrases

	texts := make(map[string]string, len(p.CommandValues))
	values := make(map[string]any, len(p.CommandValues))
	for key, text := range p.CommandValues {
		v, err := typedValue(typ, key)
		if err != nil {
			return fmt.Errorf("%w: param %s: command value key %q: %w", ErrInvalidProfile, name, key, err)
		}
		if _, dup := values[text]; dup {
			return fmt.Errorf("%w: param %s: command value %q used twice", ErrInvalidProfile, name, text)
		}
		texts[fmt.Sprint(v)] = text
		values[text] = v
	}

	desc.FormatFunc = func(v any) (string, error) {
		if text, ok := texts[fmt.Sprint(v)]; ok {
			return text, nil
		}

		return "", fmt.Errorf("param %s: no command value for %v", name, v)
	}

	desc.ParseFunc = func(text string) (any, error) {
		text = strings.TrimSpace(text)
		if v, ok := values[text]; ok {
			return v, nil
		}

		if len(phrases) > 0 {
			v, ok := phrases[text]
			if !ok {
				return nil, param.ErrUnknownPhrase
			}

			return v, nil
		}

		return typedValue(typ, text)
	}

	return nil
}

// typedValue converts text to the Go value of typ.
func typedValue(typ param.Type, text string) (any, error) {
	switch typ {
	case param.Int:
		return strconv.ParseInt(text, 10, 64)
	case param.Float:
		return strconv.ParseFloat(text, 64)
	case param.Bool:
		switch strings.ToLower(text) {
		case "true", "yes", "y":
			return true, nil
		case "false", "no", "n":
			return false, nil
		}

		return nil, fmt.Errorf("invalid boolean %q", text)
	default:
		return text, nil
	}
}

// widen converts YAML integers for float parameters; YAML has no way to tell
// 10 from 10.0 once decoded into any.
func widen(typ param.Type, v any) any {
	if typ != param.Float {
		return v
	}

	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}

	return v
}

func compileOptional(what string, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProfile, what, err)
	}

	return re, nil
}
