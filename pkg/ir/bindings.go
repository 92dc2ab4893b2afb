package ir

import (
	"github.com/hashicorp/go-set/v3"
)

// Condition selects which bindings of an Is expression are visible: those
// introduced when it held, or none.
type Condition int

const (
	Unconditional Condition = iota
	WhenTrue
	WhenFalse
)

// CollectBindings returns the bindings an expression introduces into the
// environment it is evaluated in, in declaration order. A later binding
// shadows an earlier one of the same name.
func CollectBindings(e Expr, cond Condition) []*Binding {
	var all []*Binding
	collectExpr(e, cond, func(b *Binding) { all = append(all, b) })
	return dedup(all)
}

// PatternBindings returns the bindings declared by p.
func PatternBindings(p Pattern) []*Binding {
	var all []*Binding
	collectPattern(p, func(b *Binding) { all = append(all, b) })
	return all
}

func dedup(all []*Binding) []*Binding {
	seen := set.New[string](len(all))
	out := make([]*Binding, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if seen.Insert(all[i].Symbol.Name) {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func collectExpr(e Expr, cond Condition, consume func(*Binding)) {
	switch e := e.(type) {
	case *Let:
		collectPattern(e.Pattern, consume)
	case *Then:
		for _, item := range e.List {
			collectExpr(item, cond, consume)
		}
	case *Is:
		if cond == WhenTrue {
			collectPattern(e.Pattern, consume)
		}
	}
}

func collectPattern(p Pattern, consume func(*Binding)) {
	switch p := p.(type) {
	case *BindingPattern:
		consume(p.Binding)
	case *TuplePattern:
		for _, field := range p.Fields.All() {
			collectPattern(field, consume)
		}
	case *VariantPattern:
		if p.Value != nil {
			collectPattern(p.Value, consume)
		}
	}
}
