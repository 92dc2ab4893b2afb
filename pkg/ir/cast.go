package ir

import (
	"sync"

	"github.com/thomasrohde/morph/pkg/types"
)

type castEntry struct {
	value, target, impl Value
}

// CastMap holds the implementations registered with impl cast.
type CastMap struct {
	mu      sync.RWMutex
	entries []castEntry
}

// NewCastMap returns an empty map.
func NewCastMap() *CastMap {
	return &CastMap{}
}

// Register records impl as the cast of value to target, replacing an
// earlier registration for the same pair.
func (m *CastMap) Register(value, target, impl Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if Equal(e.value, value) && Equal(e.target, target) {
			m.entries[i].impl = impl
			return
		}
	}
	m.entries = append(m.entries, castEntry{value: value, target: target, impl: impl})
}

// Find returns the implementation registered for value and target.
func (m *CastMap) Find(value, target Value) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if Equal(e.value, value) && Equal(e.target, target) {
			return e.impl, true
		}
	}
	return nil, false
}

// Equal compares values. Types are compared structurally; closures,
// natives and syntax definitions by identity.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Bool, Int32, Int64, Float64, String:
		return a == b
	case TypeValue:
		y, ok := b.(TypeValue)
		return ok && types.Equal(x.T, y.T)
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || x.Fields.Len() != y.Fields.Len() {
			return false
		}
		for name, v := range x.Fields.All() {
			if name == "" {
				continue
			}
			w, ok := y.Fields.Get(name)
			if !ok || !Equal(v, w) {
				return false
			}
		}
		if len(x.Fields.Unnamed) != len(y.Fields.Unnamed) {
			return false
		}
		for i := range x.Fields.Unnamed {
			if !Equal(x.Fields.Unnamed[i], y.Fields.Unnamed[i]) {
				return false
			}
		}
		return true
	case Variant:
		y, ok := b.(Variant)
		if !ok || x.Name != y.Name || (x.Value == nil) != (y.Value == nil) {
			return false
		}
		return x.Value == nil || Equal(x.Value, y.Value)
	case Function:
		y, ok := b.(Function)
		return ok && x.Fn == y.Fn
	case Template:
		y, ok := b.(Template)
		return ok && x.Fn.Slot == y.Fn.Slot
	case Macro:
		y, ok := b.(Macro)
		return ok && x.Fn == y.Fn
	case Native:
		y, ok := b.(Native)
		return ok && x.Name == y.Name
	case SyntaxDefinition:
		y, ok := b.(SyntaxDefinition)
		return ok && x.Def == y.Def
	case BindingValue:
		y, ok := b.(BindingValue)
		return ok && x.Binding == y.Binding
	}
	return false
}
