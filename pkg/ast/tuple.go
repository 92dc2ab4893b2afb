package ast

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Tuple is an ordered list of unnamed fields plus a set of named fields.
// The order of named fields is irrelevant; iteration visits them sorted by
// name after all unnamed fields.
type Tuple[T any] struct {
	Unnamed []T
	Named   map[string]T
}

// NewTuple returns an empty tuple.
func NewTuple[T any]() Tuple[T] {
	return Tuple[T]{Named: map[string]T{}}
}

// SingleNamed returns a tuple with one named field.
func SingleNamed[T any](name string, value T) Tuple[T] {
	t := NewTuple[T]()
	t.Named[name] = value
	return t
}

// Add appends an unnamed field when name is empty, otherwise sets a named one.
func (t *Tuple[T]) Add(name string, value T) {
	if name == "" {
		t.Unnamed = append(t.Unnamed, value)
		return
	}
	if t.Named == nil {
		t.Named = map[string]T{}
	}
	t.Named[name] = value
}

// Get returns a named field.
func (t Tuple[T]) Get(name string) (T, bool) {
	v, ok := t.Named[name]
	return v, ok
}

// Len returns the total number of fields.
func (t Tuple[T]) Len() int {
	return len(t.Unnamed) + len(t.Named)
}

// Names returns the named field names, sorted.
func (t Tuple[T]) Names() []string {
	names := make([]string, 0, len(t.Named))
	for name := range t.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All iterates over the fields. Unnamed fields are reported with an empty name.
func (t Tuple[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, v := range t.Unnamed {
			if !yield("", v) {
				return
			}
		}
		for _, name := range t.Names() {
			if !yield(name, t.Named[name]) {
				return
			}
		}
	}
}

// Values returns every field value in iteration order.
func (t Tuple[T]) Values() []T {
	out := make([]T, 0, t.Len())
	for _, v := range t.All() {
		out = append(out, v)
	}
	return out
}

// MapTuple applies f to every field.
func MapTuple[T, U any](t Tuple[T], f func(T) U) Tuple[U] {
	out := NewTuple[U]()
	for name, v := range t.All() {
		out.Add(name, f(v))
	}
	return out
}

// MapTupleErr applies f to every field, stopping at the first error.
func MapTupleErr[T, U any](t Tuple[T], f func(name string, v T) (U, error)) (Tuple[U], error) {
	out := NewTuple[U]()
	for name, v := range t.All() {
		u, err := f(name, v)
		if err != nil {
			return Tuple[U]{}, err
		}
		out.Add(name, u)
	}
	return out, nil
}

// ZipField pairs the fields of two tuples with the same shape.
type ZipField[T, U any] struct {
	Name  string
	Left  T
	Right U
}

// Zip pairs fields of two tuples. Both must have the same number of unnamed
// fields and the same set of names.
func Zip[T, U any](a Tuple[T], b Tuple[U]) ([]ZipField[T, U], error) {
	if len(a.Unnamed) != len(b.Unnamed) {
		return nil, errors.Errorf("unnamed field count mismatch: %d vs %d", len(a.Unnamed), len(b.Unnamed))
	}
	if len(a.Named) != len(b.Named) {
		return nil, errors.Errorf("named fields mismatch: %v vs %v", a.Names(), b.Names())
	}
	out := make([]ZipField[T, U], 0, a.Len())
	for i := range a.Unnamed {
		out = append(out, ZipField[T, U]{Left: a.Unnamed[i], Right: b.Unnamed[i]})
	}
	for _, name := range a.Names() {
		right, ok := b.Named[name]
		if !ok {
			return nil, errors.Errorf("field %q is missing on the other side", name)
		}
		out = append(out, ZipField[T, U]{Name: name, Left: a.Named[name], Right: right})
	}
	return out, nil
}

// IntoNamed checks that the tuple has exactly the given named fields and no
// unnamed ones, and returns them in the requested order.
func (t Tuple[T]) IntoNamed(names ...string) ([]T, error) {
	required, _, err := t.IntoNamedOpt(names, nil)
	return required, err
}

// IntoNamedOpt is like IntoNamed but allows the optional fields to be absent.
// Absent optional fields are reported as the zero value and false.
func (t Tuple[T]) IntoNamedOpt(required, optional []string) ([]T, []Opt[T], error) {
	if len(t.Unnamed) != 0 {
		return nil, nil, errors.Errorf("expected only named fields, got %d unnamed", len(t.Unnamed))
	}
	seen := 0
	req := make([]T, len(required))
	for i, name := range required {
		v, ok := t.Named[name]
		if !ok {
			return nil, nil, errors.Errorf("field %q is required", name)
		}
		req[i] = v
		seen++
	}
	opt := make([]Opt[T], len(optional))
	for i, name := range optional {
		if v, ok := t.Named[name]; ok {
			opt[i] = Opt[T]{Value: v, OK: true}
			seen++
		}
	}
	if seen != len(t.Named) {
		expected := append(append([]string{}, required...), optional...)
		return nil, nil, errors.Errorf("unexpected fields %v, expected %v", t.Names(), expected)
	}
	return req, opt, nil
}

// IntoSingleNamed expects exactly one field with the given name.
func (t Tuple[T]) IntoSingleNamed(name string) (T, error) {
	fields, err := t.IntoNamed(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return fields[0], nil
}

// IntoUnnamed expects exactly n unnamed fields and nothing else.
func (t Tuple[T]) IntoUnnamed(n int) ([]T, error) {
	if len(t.Named) != 0 || len(t.Unnamed) != n {
		return nil, errors.Errorf("expected %d unnamed fields, got %d unnamed and %v", n, len(t.Unnamed), t.Names())
	}
	return t.Unnamed, nil
}

// Opt is an optional tuple field.
type Opt[T any] struct {
	Value T
	OK    bool
}

// FormatTuple renders a tuple with the given field formatter.
func FormatTuple[T any](t Tuple[T], format func(T) string) string {
	parts := make([]string, 0, t.Len())
	for name, v := range t.All() {
		if name == "" {
			parts = append(parts, format(v))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", name, format(v)))
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
