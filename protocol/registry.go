package protocol

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks independent drivers by id (see WithID). Drivers share no
// mutable state; the registry only indexes them.
type Registry struct {
	drivers *xsync.MapOf[string, *Driver]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: xsync.NewMapOf[string, *Driver]()}
}

// Register adds d under its id.
func (r *Registry) Register(d *Driver) error {
	if _, loaded := r.drivers.LoadOrStore(d.ID(), d); loaded {
		return fmt.Errorf("%w: %s", ErrDriverExists, d.ID())
	}

	return nil
}

// Get returns the driver registered under id.
func (r *Registry) Get(id string) (*Driver, bool) {
	return r.drivers.Load(id)
}

// Unregister removes and returns the driver registered under id.
func (r *Registry) Unregister(id string) (*Driver, bool) {
	return r.drivers.LoadAndDelete(id)
}

// Names returns the registered ids in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.drivers.Size())
	r.drivers.Range(func(name string, _ *Driver) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)

	return names
}

// Range calls f for every registered driver until f returns false.
func (r *Registry) Range(f func(name string, d *Driver) bool) {
	r.drivers.Range(f)
}

// Len returns the number of registered drivers.
func (r *Registry) Len() int {
	return r.drivers.Size()
}
