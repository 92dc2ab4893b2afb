// Package scope implements lexical environments.
//
// A Scope is either NonRecursive or Recursive. Lookups that miss in an open
// Recursive scope suspend until the scope is closed, which lets mutually
// recursive definitions be compiled concurrently: each one waits only until
// every member of its group has been inserted.
package scope

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
)

// Kind tells whether a scope allows forward references.
type Kind int

const (
	NonRecursive Kind = iota
	Recursive
)

func (k Kind) String() string {
	if k == Recursive {
		return "recursive"
	}
	return "non-recursive"
}

var lastID atomic.Uint64

func nextID() uint64 { return lastID.Add(1) }

// Mark returns a point in time for Lookup.AtMost: symbols and scopes created
// later compare greater.
func Mark() uint64 { return lastID.Load() }

// Symbol is a declared name with a unique identity. Two inserts of the same
// name produce different symbols.
type Symbol struct {
	ID   uint64
	Name string
}

// NewSymbol allocates a fresh identity for name.
func NewSymbol(name string) Symbol {
	return Symbol{ID: nextID(), Name: name}
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.ID)
}

// Lookup is a key for finding a local: by name, or by symbol identity.
//
// A name lookup with AtMost set ignores symbols inserted after that Mark into
// NonRecursive scopes that already existed at the mark. Code compiled later
// than it was written uses this to see the names it was written against.
type Lookup struct {
	Name   string
	ID     uint64
	AtMost uint64
}

// ByName returns a lookup key for name.
func ByName(name string) Lookup { return Lookup{Name: name} }

// ByID returns a lookup key for sym's identity.
func ByID(sym Symbol) Lookup { return Lookup{ID: sym.ID, Name: sym.Name} }

func (l Lookup) String() string {
	if l.ID != 0 {
		return fmt.Sprintf("id#%d (%s)", l.ID, l.Name)
	}
	return fmt.Sprintf("%q", l.Name)
}

// Event is reported to the trace callback.
type Event struct {
	Event   string
	ScopeID uint64
	Kind    Kind
	Lookup  string
}

type options struct {
	trace func(Event)
}

// Option configures a root scope. Children inherit it.
type Option func(*options)

// WithTrace installs a callback receiving scope events.
func WithTrace(fn func(Event)) Option {
	return func(o *options) { o.trace = fn }
}

// Entry is a local binding.
type Entry[V any] struct {
	Symbol Symbol
	Value  V
}

// Scope is a node of a parent-linked environment chain.
type Scope[V any] struct {
	id     uint64
	kind   Kind
	parent *Scope[V]
	opts   *options

	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	idByName map[string][]uint64
	byID     map[uint64]Entry[V]
	order    []uint64
	syntax   []*ast.SyntaxDefinition
}

// NewRoot creates a top-level NonRecursive scope.
func NewRoot[V any](opts ...Option) *Scope[V] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return newScope[V](nil, NonRecursive, o)
}

func newScope[V any](parent *Scope[V], kind Kind, o *options) *Scope[V] {
	s := &Scope[V]{
		id:       nextID(),
		kind:     kind,
		parent:   parent,
		opts:     o,
		closed:   make(chan struct{}),
		idByName: map[string][]uint64{},
		byID:     map[uint64]Entry[V]{},
	}
	s.emit("scope_open", "")
	return s
}

// Child creates a nested scope.
func (s *Scope[V]) Child(kind Kind) *Scope[V] {
	return newScope(s, kind, s.opts)
}

func (s *Scope[V]) ID() uint64            { return s.id }
func (s *Scope[V]) Kind() Kind            { return s.kind }
func (s *Scope[V]) Parent() *Scope[V]     { return s.parent }
func (s *Scope[V]) Done() <-chan struct{} { return s.closed }

func (s *Scope[V]) emit(event, lookup string) {
	if s.opts.trace != nil {
		s.opts.trace(Event{Event: event, ScopeID: s.id, Kind: s.kind, Lookup: lookup})
	}
}

// Close releases every lookup waiting on this scope, now and in the future.
// Closing twice is a no-op.
func (s *Scope[V]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.emit("scope_close", "")
	})
}

// IsClosed reports whether Close has been called.
func (s *Scope[V]) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Release marks the end of the scope's lexical region. A Recursive scope must
// have been closed explicitly before; otherwise its waiters could never be
// released, and Release panics.
func (s *Scope[V]) Release() {
	if s.kind == Recursive && !s.IsClosed() {
		panic(fmt.Sprintf("recursive scope %d released before it was closed", s.id))
	}
	s.Close()
}

// Insert binds name to value under a fresh symbol.
func (s *Scope[V]) Insert(name string, value V) Symbol {
	sym := NewSymbol(name)
	s.InsertSymbol(sym, value)
	return sym
}

// InsertSymbol binds an existing symbol. A later insert of the same name
// shadows it for name lookups; lookups by identity still find it.
func (s *Scope[V]) InsertSymbol(sym Symbol, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sym.ID]; !ok {
		s.order = append(s.order, sym.ID)
		s.idByName[sym.Name] = append(s.idByName[sym.Name], sym.ID)
	}
	s.byID[sym.ID] = Entry[V]{Symbol: sym, Value: value}
}

func (s *Scope[V]) local(l Lookup) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID != 0 {
		e, ok := s.byID[l.ID]
		return e, ok
	}
	limited := l.AtMost != 0 && s.kind == NonRecursive && s.id <= l.AtMost
	ids := s.idByName[l.Name]
	for i := len(ids) - 1; i >= 0; i-- {
		if !limited || ids[i] <= l.AtMost {
			return s.byID[ids[i]], true
		}
	}
	return Entry[V]{}, false
}

// Locals returns the scope's own bindings in insertion order.
func (s *Scope[V]) Locals() []Entry[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry[V], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Lookup finds l, walking the chain from the innermost scope outward. A miss
// in an open Recursive scope waits for it to close and retries.
func (s *Scope[V]) Lookup(ctx context.Context, l Lookup) (Entry[V], error) {
	return s.find(ctx, l, func(*Scope[V]) bool { return true })
}

// LookupOwned is Lookup on behalf of the code that is going to close the
// scopes in owned. A miss in one of them moves on instead of waiting.
func (s *Scope[V]) LookupOwned(ctx context.Context, l Lookup, owned []*Scope[V]) (Entry[V], error) {
	return s.find(ctx, l, func(cur *Scope[V]) bool {
		return !slices.Contains(owned, cur)
	})
}

// Get is Lookup without waiting: a miss in an open Recursive scope moves on
// to the parent immediately.
func (s *Scope[V]) Get(l Lookup) (Entry[V], bool) {
	e, err := s.find(context.Background(), l, func(*Scope[V]) bool { return false })
	return e, err == nil
}

func (s *Scope[V]) find(ctx context.Context, l Lookup, wait func(*Scope[V]) bool) (Entry[V], error) {
	for cur := s; cur != nil; cur = cur.parent {
		for {
			wasClosed := cur.IsClosed()
			if e, ok := cur.local(l); ok {
				return e, nil
			}
			if cur.kind == NonRecursive || wasClosed || !wait(cur) {
				break
			}
			cur.emit("lookup_wait", l.String())
			select {
			case <-cur.closed:
			case <-ctx.Done():
				return Entry[V]{}, ctx.Err()
			}
			cur.emit("lookup_resume", l.String())
		}
	}
	return Entry[V]{}, &NotFoundError{Lookup: l, Hint: s.suggest(l)}
}

// Names returns every name visible from s, innermost first, without
// duplicates.
func (s *Scope[V]) Names() []string {
	seen := map[string]bool{}
	var names []string
	for cur := s; cur != nil; cur = cur.parent {
		for _, e := range cur.Locals() {
			if !seen[e.Symbol.Name] {
				seen[e.Symbol.Name] = true
				names = append(names, e.Symbol.Name)
			}
		}
	}
	return names
}

func (s *Scope[V]) suggest(l Lookup) string {
	if l.ID != 0 || l.Name == "" {
		return ""
	}
	ranks := fuzzy.RankFindFold(l.Name, s.Names())
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return fmt.Sprintf("did you mean %q?", ranks[0].Target)
}

// AddSyntax records a syntax definition declared in this scope.
func (s *Scope[V]) AddSyntax(def *ast.SyntaxDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syntax = append(s.syntax, def)
}

// Syntax returns the syntax definitions declared directly in this scope.
func (s *Scope[V]) Syntax() []*ast.SyntaxDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ast.SyntaxDefinition(nil), s.syntax...)
}

// NotFoundError is returned when a lookup reaches the end of the chain.
type NotFoundError struct {
	Lookup Lookup
	Hint   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Lookup)
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *NotFoundError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.ENotFound, e.Error(), nil, e.Hint)
}
