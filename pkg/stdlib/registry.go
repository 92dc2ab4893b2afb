// Package stdlib provides the natives reachable from morph code through
// `native "name"`.
package stdlib

import (
	"sort"

	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/ir"
)

// Fn represents a native function or constant.
type Fn struct {
	Name         string
	CapabilityID string
	Const        ir.Value
	Execute      ir.NativeFunc
}

// Registry holds registered natives.
type Registry struct {
	fns map[string]*Fn
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fns: make(map[string]*Fn),
	}
}

// Register adds a native to the registry.
func (r *Registry) Register(fn Fn) {
	r.fns[fn.Name] = &fn
}

// Get retrieves a native by name.
func (r *Registry) Get(name string) *Fn {
	return r.fns[name]
}

// All returns all registered natives.
func (r *Registry) All() map[string]*Fn {
	return r.fns
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Natives converts the registry into the map expected by evaluator.Options.
func (r *Registry) Natives() map[string]*evaluator.Native {
	out := make(map[string]*evaluator.Native, len(r.fns))
	for name, fn := range r.fns {
		out[name] = &evaluator.Native{
			Name:         fn.Name,
			CapabilityID: fn.CapabilityID,
			Const:        fn.Const,
			Execute:      fn.Execute,
		}
	}
	return out
}
