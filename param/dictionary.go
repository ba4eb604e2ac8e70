package param

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-instrument/logger"
)

// Dictionary is the bidirectional codec between a device's textual
// configuration and typed parameter values. The descriptor table is fixed at
// construction; current values may be read from any goroutine while the
// driver's receive path updates them.
type Dictionary struct {
	descs  map[string]*Descriptor
	order  []string
	forced map[string]any
	values *xsync.MapOf[string, any]
	logger logger.Logger
	owned  atomic.Bool
}

// Option is a functional option for configuring a Dictionary.
type Option interface {
	apply(*Dictionary) error
}

type optFunc func(*Dictionary) error

func (f optFunc) apply(d *Dictionary) error { return f(d) }

// WithForcedRestore makes Restore always set name to value, regardless of the
// snapshot.
func WithForcedRestore(name string, value any) Option {
	return optFunc(func(d *Dictionary) error {
		desc, ok := d.descs[name]
		if !ok {
			return fmt.Errorf("param: forced restore of unknown parameter %q", name)
		}

		norm, ok := desc.normalize(value)
		if !ok {
			return &EncodingError{Name: name, Value: value, Err: fmt.Errorf("want %s", desc.Type)}
		}
		d.forced[name] = norm

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(d *Dictionary) error {
		if l != nil {
			d.logger = l
		}

		return nil
	})
}

// NewDictionary creates a Dictionary from descs. Names must be unique and
// defaults must match their declared types.
func NewDictionary(descs []Descriptor, opts ...Option) (*Dictionary, error) {
	d := &Dictionary{
		descs:  make(map[string]*Descriptor, len(descs)),
		order:  make([]string, 0, len(descs)),
		forced: make(map[string]any),
		values: xsync.NewMapOf[string, any](),
		logger: logger.GetLogger(),
	}

	for i := range descs {
		desc := descs[i]
		if desc.Name == "" {
			return nil, fmt.Errorf("param: descriptor %d has no name", i)
		}
		if _, dup := d.descs[desc.Name]; dup {
			return nil, fmt.Errorf("param: duplicate parameter %q", desc.Name)
		}
		if _, ok := typeNames[desc.Type]; !ok {
			return nil, fmt.Errorf("param: parameter %q has unknown type %d", desc.Name, int(desc.Type))
		}

		if desc.Default != nil {
			norm, ok := desc.normalize(desc.Default)
			if !ok {
				return nil, &EncodingError{Name: desc.Name, Value: desc.Default, Err: fmt.Errorf("default, want %s", desc.Type)}
			}
			d.values.Store(desc.Name, norm)
		}

		d.descs[desc.Name] = &desc
		d.order = append(d.order, desc.Name)
	}

	for _, opt := range opts {
		if err := opt.apply(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Claim marks the dictionary as owned by one driver. It returns false when
// another owner holds it.
func (d *Dictionary) Claim() bool {
	return d.owned.CompareAndSwap(false, true)
}

// Release ends the ownership taken by Claim.
func (d *Dictionary) Release() {
	d.owned.Store(false)
}

// Names returns the parameter names in declaration order.
func (d *Dictionary) Names() []string {
	return append([]string(nil), d.order...)
}

// Descriptor returns a copy of the named descriptor.
func (d *Dictionary) Descriptor(name string) (Descriptor, bool) {
	desc, ok := d.descs[name]
	if !ok {
		return Descriptor{}, false
	}

	return *desc, true
}

// Forced returns the forced restore value of name, if any.
func (d *Dictionary) Forced(name string) (any, bool) {
	v, ok := d.forced[name]
	return v, ok
}

// UpdateFrom scans a status dump with each descriptor's pattern and
// overwrites the parameters it matches. Other parameters keep their values.
// It returns the names of the updated parameters.
func (d *Dictionary) UpdateFrom(text string) []string {
	var updated []string

	for _, name := range d.order {
		desc := d.descs[name]
		if desc.Pattern == nil {
			continue
		}

		m := desc.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		capture := m[0]
		if len(m) > 1 {
			capture = m[1]
		}

		v, err := desc.parse(capture)
		if err != nil {
			if errors.Is(err, ErrUnknownPhrase) {
				d.logger.Debug("param: unrecognized phrase", "param", name, "text", capture)
			} else {
				d.logger.Warn("param: cannot parse value", "param", name, "text", capture, "error", err)
			}

			continue
		}

		d.values.Store(name, v)
		updated = append(updated, name)
	}

	return updated
}

// Get returns the current value of name.
func (d *Dictionary) Get(name string) (any, error) {
	if _, ok := d.descs[name]; !ok {
		return nil, fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}

	v, ok := d.values.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: no value for %q", ErrNotFound, name)
	}

	return v, nil
}

// GetAll returns every parameter with a known value.
func (d *Dictionary) GetAll() map[string]any {
	all := make(map[string]any, len(d.order))
	d.values.Range(func(name string, v any) bool {
		all[name] = v
		return true
	})

	return all
}

// Set stores value locally after checking it against the declared type.
// It does not talk to the device.
func (d *Dictionary) Set(name string, value any) error {
	desc, ok := d.descs[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}

	norm, ok := desc.normalize(value)
	if !ok {
		return &EncodingError{Name: name, Value: value, Err: fmt.Errorf("want %s", desc.Type)}
	}
	d.values.Store(name, norm)

	return nil
}

// Format encodes value with the descriptor's encode rule. A value whose type
// does not match the declared type is rejected with an *EncodingError.
func (d *Dictionary) Format(name string, value any) (string, error) {
	desc, ok := d.descs[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}

	norm, ok := desc.normalize(value)
	if !ok {
		return "", &EncodingError{Name: name, Value: value, Err: fmt.Errorf("want %s", desc.Type)}
	}

	text, err := desc.format(norm)
	if err != nil {
		return "", &EncodingError{Name: name, Value: value, Err: err}
	}

	return text, nil
}

// Parse decodes text with the descriptor's decode rule; it is the inverse of
// Format.
func (d *Dictionary) Parse(name string, text string) (any, error) {
	desc, ok := d.descs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}

	v, err := desc.parse(text)
	if err != nil {
		return nil, fmt.Errorf("param: parse %s from %q: %w", name, text, err)
	}

	return v, nil
}

// Command builds the device set-command "Command=value" for name. Read-only
// parameters are rejected.
func (d *Dictionary) Command(name string, value any) (string, error) {
	desc, ok := d.descs[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}
	if desc.ReadOnly || desc.Command == "" {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	text, err := d.Format(name, value)
	if err != nil {
		return "", err
	}

	return desc.Command + "=" + text, nil
}

// Entry is one saved parameter value.
type Entry struct {
	Name  string
	Value any
}

// Snapshot is an ordered set of saved parameter values.
type Snapshot []Entry

// Setter applies one parameter value to the device and returns once the
// device acknowledged it.
type Setter func(ctx context.Context, name string, value any) error

// Snapshot saves the current values of names. Without names it saves every
// parameter flagged DirectAccess. Parameters without a known value are
// skipped.
func (d *Dictionary) Snapshot(names ...string) (Snapshot, error) {
	if len(names) == 0 {
		for _, name := range d.order {
			if d.descs[name].DirectAccess {
				names = append(names, name)
			}
		}
	}

	snap := make(Snapshot, 0, len(names))
	for _, name := range names {
		if _, ok := d.descs[name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
		}

		if v, ok := d.values.Load(name); ok {
			snap = append(snap, Entry{Name: name, Value: v})
		}
	}

	return snap, nil
}

// RestorePlan returns the sets Restore would issue for snap: the snapshot
// order with forced values substituted, followed by forced parameters the
// snapshot lacks, in declaration order.
func (d *Dictionary) RestorePlan(snap Snapshot) Snapshot {
	plan := make(Snapshot, 0, len(snap)+len(d.forced))
	seen := make(map[string]bool, len(snap))

	for _, e := range snap {
		if v, ok := d.forced[e.Name]; ok {
			e.Value = v
		}
		seen[e.Name] = true
		plan = append(plan, e)
	}

	for _, name := range d.order {
		if v, ok := d.forced[name]; ok && !seen[name] {
			plan = append(plan, Entry{Name: name, Value: v})
		}
	}

	return plan
}

// Restore re-applies snap one parameter at a time. Each set waits for set to
// return before the next one starts; the first failure stops the restore.
// Successfully restored values are stored locally.
func (d *Dictionary) Restore(ctx context.Context, snap Snapshot, set Setter) error {
	for _, e := range d.RestorePlan(snap) {
		if err := ctx.Err(); err != nil {
			return &RestoreError{Name: e.Name, Err: err}
		}

		if _, err := d.Format(e.Name, e.Value); err != nil {
			return &RestoreError{Name: e.Name, Err: err}
		}

		d.logger.Debug("param: restore", "param", e.Name, "value", e.Value)
		if err := set(ctx, e.Name, e.Value); err != nil {
			return &RestoreError{Name: e.Name, Err: err}
		}

		if err := d.Set(e.Name, e.Value); err != nil {
			return &RestoreError{Name: e.Name, Err: err}
		}
	}

	return nil
}
