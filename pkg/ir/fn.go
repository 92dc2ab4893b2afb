package ir

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/types"
)

// CompiledFn is a compiled function body.
type CompiledFn struct {
	Arg  Pattern
	Body Expr
}

// FnSlot receives a function body once its background compilation finishes.
// Readers block in Wait until then.
type FnSlot struct {
	Name string

	done chan struct{}
	once sync.Once
	fn   *CompiledFn
	err  error
}

// NewFnSlot returns an empty slot.
func NewFnSlot(name string) *FnSlot {
	return &FnSlot{Name: name, done: make(chan struct{})}
}

// Fill stores the compiled body, or the error that prevented compiling it.
// Filling a slot twice panics.
func (s *FnSlot) Fill(fn *CompiledFn, err error) {
	filled := false
	s.once.Do(func() {
		s.fn, s.err = fn, err
		close(s.done)
		filled = true
	})
	if !filled {
		panic("ir: function slot " + s.Name + " filled twice")
	}
}

// Ready returns the compiled body without waiting.
func (s *FnSlot) Ready() (*CompiledFn, bool) {
	select {
	case <-s.done:
		return s.fn, s.err == nil
	default:
		return nil, false
	}
}

// Wait blocks until the slot is filled or ctx is done.
func (s *FnSlot) Wait(ctx context.Context) (*CompiledFn, error) {
	select {
	case <-s.done:
		if s.err != nil {
			return nil, errors.Wrapf(s.err, "compiling %s", s.Name)
		}
		return s.fn, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting for %s to compile", s.Name)
	}
}

// Closure is a function body together with the environment it was created in.
type Closure struct {
	Slot *FnSlot
	Env  *Env
	Type types.Function
}
