// Package types implements type inference over unification cells.
//
// A Type is a handle to a cell. A cell is either resolved to an Inferred
// shape or unresolved, in which case it holds an optional default and a list
// of checks that run exactly once, when the cell gets resolved. Cells are
// merged with MakeSame using union-find; every root is guarded by its own
// mutex and two roots are always locked in id order.
package types

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/scope"
)

// Check validates a shape once it is known.
type Check func(Inferred) error

type cell struct {
	id uint64

	mu       sync.Mutex
	parent   *cell
	shape    Inferred
	fallback Inferred
	checks   []Check
}

var lastCellID atomic.Uint64

func newCell() *cell {
	return &cell{id: lastCellID.Add(1)}
}

// root follows parent links to the representative cell.
func (c *cell) root() *cell {
	for {
		c.mu.Lock()
		p := c.parent
		c.mu.Unlock()
		if p == nil {
			return c
		}
		c = p
	}
}

// lockRoot returns c's root, locked.
func (c *cell) lockRoot() *cell {
	for {
		r := c.root()
		r.mu.Lock()
		if r.parent == nil {
			return r
		}
		r.mu.Unlock()
	}
}

// Type is a handle to a unification cell. The zero Type is not usable; use
// New, WithDefault or Known.
type Type struct {
	c *cell
}

// New returns an unresolved type.
func New() Type {
	return Type{c: newCell()}
}

// WithDefault returns an unresolved type that resolves to def the first time
// it is read while still unresolved.
func WithDefault(def Inferred) Type {
	t := New()
	t.c.fallback = def
	return t
}

// Known returns a resolved type.
func Known(shape Inferred) Type {
	t := New()
	t.c.shape = shape
	return t
}

// IsZero reports whether t was never initialized.
func (t Type) IsZero() bool { return t.c == nil }

// Same reports whether a and b are the same cell after merging.
func (t Type) Same(other Type) bool {
	return t.c.root() == other.c.root()
}

// Peek returns the resolved shape without applying a default.
func (t Type) Peek() (Inferred, bool) {
	r := t.c.lockRoot()
	defer r.mu.Unlock()
	return r.shape, r.shape != nil
}

// Inferred returns the resolved shape. An unresolved type with a default is
// resolved to the default first.
func (t Type) Inferred() (Inferred, error) {
	r := t.c.lockRoot()
	if r.shape != nil {
		shape := r.shape
		r.mu.Unlock()
		return shape, nil
	}
	if r.fallback == nil {
		r.mu.Unlock()
		return nil, &NotInferredError{}
	}
	shape := r.fallback
	r.shape, r.fallback = shape, nil
	checks := r.checks
	r.checks = nil
	r.mu.Unlock()
	return shape, runChecks(shape, checks)
}

// AddCheck registers check. It runs immediately if the type is already
// resolved, otherwise when the type gets resolved.
func (t Type) AddCheck(check Check) error {
	r := t.c.lockRoot()
	if r.shape == nil {
		r.checks = append(r.checks, check)
		r.mu.Unlock()
		return nil
	}
	shape := r.shape
	r.mu.Unlock()
	return check(shape)
}

// Expect unifies t with a known shape.
func (t Type) Expect(shape Inferred) error {
	return t.MakeSame(Known(shape))
}

// MakeSame unifies two types.
//
// Two unresolved cells are merged. An unresolved cell merged with a resolved
// one takes its shape and runs its pending checks against it. Two resolved
// cells are compared structurally.
func (t Type) MakeSame(other Type) error {
	for {
		a, b := t.c.root(), other.c.root()
		if a == b {
			return nil
		}
		first, second := a, b
		if second.id < first.id {
			first, second = second, first
		}
		first.mu.Lock()
		second.mu.Lock()
		if a.parent != nil || b.parent != nil {
			second.mu.Unlock()
			first.mu.Unlock()
			continue
		}

		switch {
		case a.shape == nil && b.shape == nil:
			b.parent = a
			a.checks = append(a.checks, b.checks...)
			if a.fallback == nil {
				a.fallback = b.fallback
			}
			b.checks, b.fallback = nil, nil
			second.mu.Unlock()
			first.mu.Unlock()
			return nil
		case a.shape != nil && b.shape != nil:
			sa, sb := a.shape, b.shape
			second.mu.Unlock()
			first.mu.Unlock()
			return unify(sa, sb)
		}

		resolved, pending := a, b
		if a.shape == nil {
			resolved, pending = b, a
		}
		pending.parent = resolved
		shape, checks := resolved.shape, pending.checks
		pending.checks, pending.fallback = nil, nil
		second.mu.Unlock()
		first.mu.Unlock()
		return runChecks(shape, checks)
	}
}

func runChecks(shape Inferred, checks []Check) error {
	for _, check := range checks {
		if err := check(shape); err != nil {
			return err
		}
	}
	return nil
}

func unify(a, b Inferred) error {
	mismatch := &UnificationError{Left: a, Right: b}
	switch a := a.(type) {
	case Primitive:
		if b, ok := b.(Primitive); ok && a == b {
			return nil
		}
	case Tuple:
		b, ok := b.(Tuple)
		if !ok {
			break
		}
		pairs, err := ast.Zip(a.Fields, b.Fields)
		if err != nil {
			mismatch.Reason = err.Error()
			return mismatch
		}
		for _, pair := range pairs {
			if err := pair.Left.MakeSame(pair.Right); err != nil {
				return errors.Wrapf(err, "while unifying %s and %s", a, b)
			}
		}
		return nil
	case Function:
		b, ok := b.(Function)
		if !ok {
			break
		}
		if err := a.Arg.MakeSame(b.Arg); err != nil {
			return errors.Wrapf(err, "while unifying %s and %s", a, b)
		}
		if err := a.Result.MakeSame(b.Result); err != nil {
			return errors.Wrapf(err, "while unifying %s and %s", a, b)
		}
		return nil
	case Template:
		if b, ok := b.(Template); ok && a.Fn == b.Fn {
			return nil
		}
	case Variant:
		b, ok := b.(Variant)
		if !ok {
			break
		}
		return unifyVariants(a, b, mismatch)
	case Binding:
		if b, ok := b.(Binding); ok && a.Symbol.ID == b.Symbol.ID {
			return nil
		}
	}
	return mismatch
}

func unifyVariants(a, b Variant, mismatch *UnificationError) error {
	names := func(v Variant) *set.Set[string] {
		s := set.New[string](len(v.Cases))
		for _, c := range v.Cases {
			s.Insert(c.Name)
		}
		return s
	}
	if !names(a).Equal(names(b)) {
		mismatch.Reason = "variant names differ"
		return mismatch
	}
	for _, ca := range a.Cases {
		cb, _ := b.Find(ca.Name)
		switch {
		case ca.Value == nil && cb.Value == nil:
		case ca.Value == nil || cb.Value == nil:
			mismatch.Reason = fmt.Sprintf("variant %s differs in payload", ca.Name)
			return mismatch
		default:
			if err := ca.Value.MakeSame(*cb.Value); err != nil {
				return errors.Wrapf(err, "in variant %s", ca.Name)
			}
		}
	}
	return nil
}

func (t Type) String() string {
	if t.c == nil {
		return "<nil>"
	}
	shape, ok := t.Peek()
	if !ok {
		return "_"
	}
	return shape.String()
}

// InferVariant returns a type that must resolve to a variant containing name
// with a payload of type value, or no payload if value is nil.
func InferVariant(name string, value *Type) Type {
	t := New()
	// A fresh cell is unresolved, so the check is only registered.
	_ = t.AddCheck(func(shape Inferred) error {
		v, ok := shape.(Variant)
		if !ok {
			return &UnificationError{Left: shape, Right: Variant{Cases: []VariantCase{{Name: name, Value: value}}}, Reason: "expected a variant"}
		}
		c, ok := v.Find(name)
		switch {
		case !ok:
			return errors.Errorf("variant %s not found in type %s", name, v)
		case c.Value == nil && value != nil:
			return errors.Errorf("variant %s did not expect a value", name)
		case c.Value != nil && value == nil:
			return errors.Errorf("variant %s expected a value", name)
		case c.Value != nil:
			return c.Value.MakeSame(*value)
		}
		return nil
	})
	return t
}

// Substitute replaces Binding shapes reachable from t using lookup.
//
// An unresolved part of t is replaced by a fresh cell of its own that takes
// the substituted shape once the original gets resolved, so every call
// yields an independent copy even while t is still being inferred.
func Substitute(t Type, lookup func(scope.Symbol) (Type, bool)) Type {
	s := &substitution{lookup: lookup, copies: map[*cell]Type{}}
	return s.apply(t)
}

type substitution struct {
	lookup func(scope.Symbol) (Type, bool)

	mu     sync.Mutex
	copies map[*cell]Type
}

func (s *substitution) apply(t Type) Type {
	shape, ok := t.Peek()
	if !ok {
		return s.copyOf(t)
	}
	switch sh := shape.(type) {
	case Binding:
		if replacement, ok := s.lookup(sh.Symbol); ok {
			return replacement
		}
		return t
	case Tuple:
		return Known(Tuple{Fields: ast.MapTuple(sh.Fields, s.apply)})
	case Function:
		return Known(Function{Arg: s.apply(sh.Arg), Result: s.apply(sh.Result)})
	case Variant:
		cases := make([]VariantCase, len(sh.Cases))
		for i, c := range sh.Cases {
			cases[i] = VariantCase{Name: c.Name}
			if c.Value != nil {
				v := s.apply(*c.Value)
				cases[i].Value = &v
			}
		}
		return Known(Variant{Cases: cases})
	}
	return t
}

// copyOf returns the copy standing for the unresolved cell t.
func (s *substitution) copyOf(t Type) Type {
	r := t.c.lockRoot()
	fallback := r.fallback
	r.mu.Unlock()

	s.mu.Lock()
	if c, ok := s.copies[r]; ok {
		s.mu.Unlock()
		return c
	}
	c := New()
	c.c.fallback = fallback
	s.copies[r] = c
	s.mu.Unlock()

	// Run now, this only resolves the fresh c, which can not fail.
	_ = t.AddCheck(func(shape Inferred) error {
		return c.MakeSame(s.apply(Known(shape)))
	})
	return c
}

// ExpectTuple returns the field types of t, which must be a tuple.
func (t Type) ExpectTuple() (ast.Tuple[Type], error) {
	shape, err := t.Inferred()
	if err != nil {
		return ast.Tuple[Type]{}, err
	}
	tuple, ok := shape.(Tuple)
	if !ok {
		return ast.Tuple[Type]{}, &UnificationError{Left: shape, Right: Tuple{}, Reason: "expected a tuple"}
	}
	return tuple.Fields, nil
}

// ExpectFunction returns the function shape of t.
func (t Type) ExpectFunction() (Function, error) {
	shape, err := t.Inferred()
	if err != nil {
		return Function{}, err
	}
	fn, ok := shape.(Function)
	if !ok {
		return Function{}, &UnificationError{Left: shape, Right: Function{Arg: New(), Result: New()}, Reason: "expected a function"}
	}
	return fn, nil
}

// UnificationError reports two shapes that can not be made the same.
type UnificationError struct {
	Left, Right Inferred
	Reason      string
}

func (e *UnificationError) Error() string {
	msg := fmt.Sprintf("expected %s, got %s", e.Right, e.Left)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *UnificationError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EType, e.Error(), nil, "")
}

// NotInferredError is returned when reading a type that is still unknown and
// has no default.
type NotInferredError struct{}

func (e *NotInferredError) Error() string { return "type is not inferred yet" }

// Diagnostic implements diagnostics.Diagnoser.
func (e *NotInferredError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EType, e.Error(), nil, "add a type ascription with ::")
}

// Equal reports whether a and b are structurally equal without unifying
// them. Unresolved parts are equal only if they are the same cell.
func Equal(a, b Type) bool {
	if a.Same(b) {
		return true
	}
	sa, okA := a.Peek()
	sb, okB := b.Peek()
	if !okA || !okB {
		return false
	}
	switch x := sa.(type) {
	case Primitive:
		y, ok := sb.(Primitive)
		return ok && x == y
	case Tuple:
		y, ok := sb.(Tuple)
		if !ok {
			return false
		}
		fields, err := ast.Zip(x.Fields, y.Fields)
		if err != nil {
			return false
		}
		for _, f := range fields {
			if !Equal(f.Left, f.Right) {
				return false
			}
		}
		return true
	case Function:
		y, ok := sb.(Function)
		return ok && Equal(x.Arg, y.Arg) && Equal(x.Result, y.Result)
	case Template:
		y, ok := sb.(Template)
		return ok && x.Fn == y.Fn
	case Variant:
		y, ok := sb.(Variant)
		if !ok || len(x.Cases) != len(y.Cases) {
			return false
		}
		for _, c := range x.Cases {
			other, ok := y.Find(c.Name)
			if !ok || (c.Value == nil) != (other.Value == nil) {
				return false
			}
			if c.Value != nil && !Equal(*c.Value, *other.Value) {
				return false
			}
		}
		return true
	case Binding:
		y, ok := sb.(Binding)
		return ok && x.Symbol.ID == y.Symbol.ID
	}
	return false
}
