package compiler

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/formatter"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/types"
)

func (st *state) fnName(kind string, node ast.Ast) string {
	if st.hint != "" {
		return st.hint
	}
	return fmt.Sprintf("%s at %s", kind, node.NodeSpan())
}

// spawnBody compiles a function or template body in the background and
// fills slot with the result, or with the error that stopped it.
func (st *state) spawnBody(slot *ir.FnSlot, arg ast.Opt[ast.Ast], body ast.Ast, sig types.Function, node ast.Ast) {
	st.spawn(slot.Name, node.NodeSpan(), func(task *state) error {
		compiled, err := task.body(arg, body, sig)
		if err != nil {
			err = errors.Wrapf(err, "while compiling %s", formatter.Short(node))
		}
		slot.Fill(compiled, err)
		return err
	})
}

func (st *state) body(arg ast.Opt[ast.Ast], body ast.Ast, sig types.Function) (*ir.CompiledFn, error) {
	inner := st.env.Child(scope.NonRecursive)
	task := st.in(inner)

	var p ir.Pattern = &ir.UnitPattern{Data: ir.Data{Type: types.Known(types.Unit), Span: body.NodeSpan()}}
	if arg.OK {
		var err error
		if p, err = task.pattern(arg.Value); err != nil {
			return nil, err
		}
	}
	if err := p.Info().Type.MakeSame(sig.Arg); err != nil {
		return nil, at(p.Info().Span, err)
	}
	inject(inner, ir.PatternBindings(p))

	e, err := task.expr(body)
	if err != nil {
		return nil, err
	}
	if err := e.Info().Type.MakeSame(sig.Result); err != nil {
		return nil, at(e.Info().Span, err)
	}
	return &ir.CompiledFn{Arg: p, Body: e}, nil
}

// makeCall applies f to arg. Templates are instantiated first.
func (st *state) makeCall(f, arg ir.Expr, span source.Span) (ir.Expr, error) {
	f, err := st.autoInstantiate(f)
	if err != nil {
		return nil, err
	}
	result := types.New()
	if err := f.Info().Type.Expect(types.Function{Arg: arg.Info().Type, Result: result}); err != nil {
		return nil, at(span, err)
	}
	return &ir.Call{Data: ir.Data{Type: result, Span: span}, F: f, Arg: arg}, nil
}

// autoInstantiate instantiates e with fresh type variables for as long as
// its type is a template.
func (st *state) autoInstantiate(e ir.Expr) (ir.Expr, error) {
	for {
		shape, ok := e.Info().Type.Peek()
		if _, isTemplate := shape.(types.Template); !ok || !isTemplate {
			return e, nil
		}
		span := e.Info().Span
		var err error
		if e, err = st.instantiate(e, placeholder(span), span); err != nil {
			return nil, err
		}
	}
}

// instantiate waits for the template body, evaluates arg and substitutes
// the type bindings it produces into the body's type.
func (st *state) instantiate(tmpl, arg ir.Expr, span source.Span) (ir.Expr, error) {
	shape, err := tmpl.Info().Type.Inferred()
	if err != nil {
		return nil, at(tmpl.Info().Span, err)
	}
	t, ok := shape.(types.Template)
	if !ok {
		return nil, at(tmpl.Info().Span, errors.Errorf("%s is not a template", shape))
	}
	slot, ok := t.Fn.(*ir.FnSlot)
	if !ok {
		return nil, errors.Errorf("template %s has no body", t.Name)
	}
	compiled, err := slot.Wait(st.ctx)
	if err != nil {
		return nil, err
	}
	if err := compiled.Arg.Info().Type.MakeSame(arg.Info().Type); err != nil {
		return nil, at(arg.Info().Span, err)
	}
	argValue, err := st.eval(arg)
	if err != nil {
		return nil, err
	}
	bound := scope.NewRoot[ir.Value]()
	if err := st.c.interp.Bind(bound, compiled.Arg, argValue); err != nil {
		return nil, err
	}
	result := types.Substitute(compiled.Body.Info().Type, func(sym scope.Symbol) (types.Type, bool) {
		e, ok := bound.Get(scope.ByID(sym))
		if !ok {
			return types.Type{}, false
		}
		tv, ok := e.Value.(ir.TypeValue)
		return tv.T, ok
	})
	return &ir.Instantiate{Data: ir.Data{Type: result, Span: span}, Template: tmpl, Arg: arg}, nil
}
