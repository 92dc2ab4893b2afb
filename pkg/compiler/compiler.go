// Package compiler turns syntax trees into typed ir.
//
// Every Complex node is dispatched on the identity of its syntax definition.
// Definitions named "builtin macro <name>" are handled by the builtin of that
// name. Any other definition must have been implemented with `impl syntax`:
// a macro implementation is called with the node's raw children and its
// result compiled in place of the node, while any other value is called with
// the compiled children.
//
// Function and template bodies are compiled by background tasks, so that
// definitions in a `rec` group may refer to each other regardless of order.
// Compile returns only when every task it started has finished.
package compiler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/formatter"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/lexer"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/types"
)

// BuiltinPrefix starts the name of every syntax definition handled by a
// builtin macro.
const BuiltinPrefix = "builtin macro "

const (
	TraceSyntaxRegistered  evaluator.TraceEventType = "syntax_registered"
	TraceSyntaxImplemented evaluator.TraceEventType = "syntax_implemented"
	TraceTaskSpawn         evaluator.TraceEventType = "task_spawn"
	TraceTaskDone          evaluator.TraceEventType = "task_done"
	TraceMacroExpand       evaluator.TraceEventType = "macro_expand"
)

// Importer loads the value of another source file for `import`.
type Importer interface {
	Import(ctx context.Context, path string) (ir.Value, error)
}

type options struct {
	defaultNumber types.Primitive
	importer      Importer
}

// Option configures a Compiler.
type Option func(*options)

// WithDefaultNumber sets the type an unconstrained integer literal gets.
func WithDefaultNumber(p types.Primitive) Option {
	return func(o *options) { o.defaultNumber = p }
}

// WithImporter enables `import`.
func WithImporter(i Importer) Option {
	return func(o *options) { o.importer = i }
}

// Compiler compiles syntax trees. Syntax implementations registered while
// compiling one tree stay available for the next, so a Compiler is meant
// to live as long as the environment it compiles into.
type Compiler struct {
	interp *evaluator.Interpreter
	opts   options

	mu     sync.Mutex
	macros map[*ast.SyntaxDefinition]ir.Value
}

// New returns a Compiler that uses interp for compile-time evaluation.
func New(interp *evaluator.Interpreter, opts ...Option) *Compiler {
	o := options{defaultNumber: types.Int32}
	for _, opt := range opts {
		opt(&o)
	}
	return &Compiler{
		interp: interp,
		opts:   o,
		macros: map[*ast.SyntaxDefinition]ir.Value{},
	}
}

// Declare records def as a syntax whose implementation is pending.
func (c *Compiler) Declare(def *ast.SyntaxDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.macros[def]; !ok {
		c.macros[def] = nil
	}
}

// Implement sets the implementation of def. Each definition is implemented
// at most once.
func (c *Compiler) Implement(def *ast.SyntaxDefinition, impl ir.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.macros[def] != nil {
		return errors.Errorf("syntax %s is already implemented", def.Name)
	}
	c.macros[def] = impl
	return nil
}

// Implementation returns what def was implemented with.
func (c *Compiler) Implementation(def *ast.SyntaxDefinition) (ir.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	impl := c.macros[def]
	return impl, impl != nil
}

// PendingMacroError is returned when a syntax is used before it has been
// implemented.
type PendingMacroError struct {
	Name string
}

func (e *PendingMacroError) Error() string {
	return fmt.Sprintf("%s can not be used until it is defined", e.Name)
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *PendingMacroError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EMacroPending, e.Error(), nil,
		fmt.Sprintf("implement it first with `impl syntax %s = ...`", e.Name))
}

// ArgsError is returned when a builtin macro is applied to children it does
// not accept.
type ArgsError struct {
	Err error
}

func (e *ArgsError) Error() string {
	return "Macro received incorrect arguments: " + e.Err.Error()
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *ArgsError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EMacroArgs, e.Error(), nil, "")
}

func argsErr(err error) error {
	if err == nil {
		return nil
	}
	return &ArgsError{Err: err}
}

// located attaches a span to an error that does not carry one.
type located struct {
	span source.Span
	err  error
}

func (e *located) Error() string           { return e.err.Error() }
func (e *located) Cause() error            { return e.err }
func (e *located) Unwrap() error           { return e.err }
func (e *located) ErrorSpan() *source.Span { return &e.span }

func at(span source.Span, err error) error {
	if err == nil || diagnostics.FromError(err).Span != nil {
		return err
	}
	return &located{span: span, err: err}
}

// Compile compiles node in env. Names declared by node at its top level
// are added to env.
func (c *Compiler) Compile(ctx context.Context, env *ir.Env, node ast.Ast) (ir.Expr, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)
	st := &state{c: c, ctx: groupCtx, group: group, env: env}

	e, err := st.expr(node)
	if err != nil {
		// Tasks still waiting on names or bodies give up once the context
		// is canceled.
		cancel()
		_ = group.Wait()
		return nil, err
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return e, nil
}

// state is the context a node is compiled in.
type state struct {
	c     *Compiler
	ctx   context.Context
	group *errgroup.Group
	env   *ir.Env
	// owned lists the Recursive scopes this task closes itself; lookups
	// must not wait for them.
	owned []*ir.Env
	// mark limits name lookups to what existed when the task was spawned.
	mark uint64
	// hint names the function or template being compiled, if known.
	hint string
}

func (st *state) in(env *ir.Env) *state {
	next := *st
	next.env = env
	next.hint = ""
	return &next
}

func (st *state) owning(env *ir.Env) *state {
	next := st.in(env)
	next.owned = append(slices.Clip(st.owned), env)
	return next
}

func (st *state) named(hint string) *state {
	next := *st
	next.hint = hint
	return &next
}

func (st *state) plain() *state { return st.named("") }

// spawn runs task in the background. The task sees the environment as it is
// now: names inserted later into existing non-recursive scopes stay hidden.
func (st *state) spawn(name string, span source.Span, task func(*state) error) {
	mark := st.mark
	if mark == 0 {
		mark = scope.Mark()
	}
	child := &state{c: st.c, ctx: st.ctx, group: st.group, env: st.env, mark: mark}
	data := map[string]string{"task": name}
	st.c.interp.Emit(TraceTaskSpawn, &span, data)
	st.group.Go(func() error {
		defer st.c.interp.Emit(TraceTaskDone, &span, data)
		return task(child)
	})
}

func (st *state) lookup(name string) (ir.Value, error) {
	e, err := st.env.LookupOwned(st.ctx, scope.Lookup{Name: name, AtMost: st.mark}, st.owned)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (st *state) eval(e ir.Expr) (ir.Value, error) {
	return st.c.interp.Eval(st.ctx, st.env, e)
}

// evalType compiles and evaluates a type expression.
func (st *state) evalType(node ast.Ast) (types.Type, error) {
	e, err := st.plain().expr(node)
	if err != nil {
		return types.Type{}, err
	}
	if err := e.Info().Type.Expect(types.TypeType); err != nil {
		return types.Type{}, at(e.Info().Span, err)
	}
	v, err := st.eval(e)
	if err != nil {
		return types.Type{}, err
	}
	t, err := evaluator.AsType(v)
	return t, at(e.Info().Span, err)
}

// evalConst compiles node and evaluates it right away.
func (st *state) evalConst(node ast.Ast) (ir.Value, error) {
	e, err := st.expr(node)
	if err != nil {
		return nil, err
	}
	return st.eval(e)
}

func (st *state) expr(node ast.Ast) (ir.Expr, error) {
	switch node := node.(type) {
	case nil:
		return unitExpr(source.Span{}), nil
	case *ast.Simple:
		e, err := st.simple(node)
		return e, at(node.Span, err)
	case *ast.SyntaxDef:
		return st.syntaxDef(node), nil
	case *ast.Complex:
		e, err := st.complexExpr(node)
		if err != nil {
			return nil, errors.Wrapf(at(node.Span, err), "while compiling %s", formatter.Short(node))
		}
		return e, nil
	}
	return nil, errors.Errorf("unexpected node %T", node)
}

func (st *state) pattern(node ast.Ast) (ir.Pattern, error) {
	switch node := node.(type) {
	case nil:
		return &ir.UnitPattern{Data: ir.Data{Type: types.Known(types.Unit)}}, nil
	case *ast.Simple:
		name, ok := ast.Ident(node)
		if !ok {
			return nil, at(node.Span, errors.Errorf("%s can not be used as a pattern", node.Token.Raw))
		}
		b := ir.NewBinding(name, types.New())
		return &ir.BindingPattern{Data: ir.Data{Type: b.Type, Span: node.Span}, Binding: b}, nil
	case *ast.SyntaxDef:
		return nil, at(node.Span, errors.New("a syntax definition can not be used as a pattern"))
	case *ast.Complex:
		p, err := st.complexPattern(node)
		if err != nil {
			return nil, errors.Wrapf(at(node.Span, err), "while compiling %s", formatter.Short(node))
		}
		return p, nil
	}
	return nil, errors.Errorf("unexpected node %T", node)
}

func (st *state) simple(node *ast.Simple) (ir.Expr, error) {
	tok := node.Token
	switch tok.Kind {
	case lexer.Ident:
		v, err := st.lookup(tok.Value)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(ir.BindingValue); ok {
			return &ir.BindingExpr{Data: ir.Data{Type: b.Binding.Type, Span: node.Span}, Binding: b.Binding}, nil
		}
		return constant(v, node.Span), nil
	case lexer.String:
		return constant(ir.String(tok.Value), node.Span), nil
	case lexer.Number:
		return st.number(tok, node.Span), nil
	}
	return nil, errors.Errorf("unexpected %q", tok.Raw)
}

func (st *state) number(tok lexer.Token, span source.Span) ir.Expr {
	raw := tok.Value
	var t types.Type
	if strings.ContainsAny(raw, ".eE") {
		t = types.WithDefault(types.Float64)
		_ = t.AddCheck(func(shape types.Inferred) error {
			if shape != types.Float64 {
				return errors.Errorf("%s can not be of type %s", raw, shape)
			}
			return nil
		})
	} else {
		t = types.WithDefault(st.c.opts.defaultNumber)
		_ = t.AddCheck(func(shape types.Inferred) error {
			if p, ok := shape.(types.Primitive); !ok || !p.IsNumber() {
				return errors.Errorf("number literal can not be of type %s", shape)
			}
			return nil
		})
	}
	return &ir.Number{Data: ir.Data{Type: t, Span: span}, Raw: raw}
}

func (st *state) syntaxDef(node *ast.SyntaxDef) ir.Expr {
	def := node.Def
	st.env.AddSyntax(def)
	st.env.Insert(def.Name, ir.SyntaxDefinition{Def: def})
	st.c.Declare(def)
	st.c.interp.Emit(TraceSyntaxRegistered, &node.Span, map[string]string{"syntax": def.Name})
	return unitExpr(node.Span)
}

func (st *state) complexExpr(node *ast.Complex) (ir.Expr, error) {
	def := node.Definition
	if name, ok := strings.CutPrefix(def.Name, BuiltinPrefix); ok {
		b, err := findBuiltin(name)
		if err != nil {
			return nil, err
		}
		if b.expr == nil {
			return nil, errors.Errorf("builtin macro %q can not be used as an expression", name)
		}
		e, err := b.expr(st, node)
		return e, errors.Wrapf(err, "in builtin macro %q", name)
	}
	impl, ok := st.c.Implementation(def)
	if !ok {
		return nil, &PendingMacroError{Name: def.Name}
	}
	if m, ok := impl.(ir.Macro); ok {
		expanded, err := st.expand(m, node)
		if err != nil {
			return nil, err
		}
		return st.expr(expanded)
	}
	args, err := ast.MapTupleErr(node.Values, func(_ string, child ast.Ast) (ir.Expr, error) {
		return st.plain().expr(child)
	})
	if err != nil {
		return nil, err
	}
	return st.makeCall(constant(impl, node.Span), tupleExpr(args, node), node.Span)
}

func (st *state) complexPattern(node *ast.Complex) (ir.Pattern, error) {
	def := node.Definition
	if name, ok := strings.CutPrefix(def.Name, BuiltinPrefix); ok {
		b, err := findBuiltin(name)
		if err != nil {
			return nil, err
		}
		if b.pattern == nil {
			return nil, errors.Errorf("builtin macro %q can not be used in a pattern", name)
		}
		p, err := b.pattern(st, node)
		return p, errors.Wrapf(err, "in builtin macro %q", name)
	}
	impl, ok := st.c.Implementation(def)
	if !ok {
		return nil, &PendingMacroError{Name: def.Name}
	}
	m, ok := impl.(ir.Macro)
	if !ok {
		return nil, errors.Errorf("%s is implemented by %s and can not be used in a pattern", def.Name, impl)
	}
	expanded, err := st.expand(m, node)
	if err != nil {
		return nil, err
	}
	return st.pattern(expanded)
}

// expand calls a user macro with the node's children, unevaluated.
func (st *state) expand(m ir.Macro, node *ast.Complex) (ast.Ast, error) {
	args := ast.MapTuple(node.Values, func(child ast.Ast) ir.Value { return ir.AstValue{Ast: child} })
	st.c.interp.Emit(TraceMacroExpand, &node.Span, map[string]string{"macro": node.Definition.Name})
	result, err := st.c.interp.Call(st.ctx, m, ir.Tuple{Fields: args})
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %s", node.Definition.Name)
	}
	expanded, ok := result.(ir.AstValue)
	if !ok {
		return nil, errors.Errorf("macro %s returned %s, expected ast", node.Definition.Name, result)
	}
	return expanded.Ast, nil
}

// inject makes the bindings visible by name in env while compiling.
func inject(env *ir.Env, bindings []*ir.Binding) {
	for _, b := range bindings {
		env.Insert(b.Symbol.Name, ir.BindingValue{Binding: b})
	}
}

func constant(v ir.Value, span source.Span) *ir.Constant {
	return &ir.Constant{Data: ir.Data{Type: v.Type(), Span: span}, Value: v}
}

func unitExpr(span source.Span) *ir.UnitExpr {
	return &ir.UnitExpr{Data: ir.Data{Type: types.Known(types.Unit), Span: span}}
}

// placeholder is a type still to be inferred, as a value.
func placeholder(span source.Span) *ir.Constant {
	return constant(ir.TypeValue{T: types.New()}, span)
}
