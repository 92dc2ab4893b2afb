package compiler

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/lexer"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/types"
)

type builtin struct {
	expr    func(st *state, node *ast.Complex) (ir.Expr, error)
	pattern func(st *state, node *ast.Complex) (ir.Pattern, error)
}

var builtins = map[string]builtin{}

func register(name string, b builtin) {
	if _, dup := builtins[name]; dup {
		panic("compiler: builtin macro " + name + " registered twice")
	}
	builtins[name] = b
}

func init() {
	register("native", builtin{expr: compileNative})
	register("type_ascribe", builtin{expr: compileAscribe, pattern: ascribePattern})
	register("let", builtin{expr: compileLet})
	register("const_let", builtin{expr: compileConstLet})
	register("call", builtin{expr: compileCall})
	register("then", builtin{expr: compileThen})
	register("if", builtin{expr: compileIf})
	register("match", builtin{expr: compileMatch})
	register("is", builtin{expr: compileIs})
	register("variant", builtin{expr: compileVariant, pattern: variantPattern})
	register("newtype", builtin{expr: compileNewtype})
	register("merge", builtin{expr: compileMerge})
	register("scope", builtin{expr: compileScope, pattern: scopePattern})
	register("macro", builtin{expr: compileMacro})
	register("function_def", builtin{expr: compileFunction})
	register("template_def", builtin{expr: compileTemplate})
	register("instantiate_template", builtin{expr: compileInstantiate})
	register("struct_def", builtin{expr: compileStruct})
	register("tuple", builtin{expr: compileTuple, pattern: tuplePattern})
	register("field", builtin{expr: compileField, pattern: fieldPattern})
	register("field_access", builtin{expr: compileFieldAccess})
	register("function_type", builtin{expr: compileFunctionType})
	register("make_unit", builtin{expr: compileUnit, pattern: unitPattern})
	register("placeholder", builtin{expr: compilePlaceholder, pattern: placeholderPattern})
	register("quote", builtin{expr: compileQuote})
	register("unquote", builtin{expr: compileUnquote})
	register("use", builtin{expr: compileUse})
	register("syntax_module", builtin{expr: compileSyntaxModule})
	register("impl_syntax", builtin{expr: compileImplSyntax})
	register("cast", builtin{expr: compileCast})
	register("impl_cast", builtin{expr: compileImplCast})
	register("import", builtin{expr: compileImport})
}

// BuiltinNames returns the names of every builtin macro, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownBuiltinError is returned for a "builtin macro" definition whose
// name no builtin has.
type UnknownBuiltinError struct {
	Name string
	Hint string
}

func (e *UnknownBuiltinError) Error() string {
	return fmt.Sprintf("builtin macro %q not found", e.Name)
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *UnknownBuiltinError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EUnknownBuiltin, e.Error(), nil, e.Hint)
}

// LookupBuiltin reports whether a builtin macro named name exists, and
// otherwise returns an UnknownBuiltinError with a suggestion.
func LookupBuiltin(name string) error {
	_, err := findBuiltin(name)
	return err
}

func findBuiltin(name string) (builtin, error) {
	if b, ok := builtins[name]; ok {
		return b, nil
	}
	e := &UnknownBuiltinError{Name: name}
	if ranks := fuzzy.RankFindFold(name, BuiltinNames()); len(ranks) > 0 {
		sort.Sort(ranks)
		e.Hint = fmt.Sprintf("did you mean %q?", ranks[0].Target)
	}
	return builtin{}, e
}

func isBuiltin(a ast.Ast, name string) (*ast.Complex, bool) {
	c, ok := a.(*ast.Complex)
	return c, ok && c.Definition.Name == BuiltinPrefix+name
}

func data(t types.Type, node ast.Ast) ir.Data {
	return ir.Data{Type: t, Span: node.NodeSpan()}
}

func expectAt(t types.Type, shape types.Inferred, e ir.Expr) error {
	return at(e.Info().Span, t.Expect(shape))
}

func compileNative(st *state, node *ast.Complex) (ir.Expr, error) {
	nameNode, err := node.Values.IntoSingleNamed("name")
	if err != nil {
		return nil, argsErr(err)
	}
	name, err := st.plain().expr(nameNode)
	if err != nil {
		return nil, err
	}
	if err := expectAt(name.Info().Type, types.String, name); err != nil {
		return nil, err
	}
	return &ir.NativeExpr{Data: data(types.New(), node), Name: name}, nil
}

func compileAscribe(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("value", "type")
	if err != nil {
		return nil, argsErr(err)
	}
	e, err := st.expr(fields[0])
	if err != nil {
		return nil, err
	}
	t, err := st.evalType(fields[1])
	if err != nil {
		return nil, err
	}
	return e, at(node.Span, e.Info().Type.MakeSame(t))
}

func ascribePattern(st *state, node *ast.Complex) (ir.Pattern, error) {
	fields, err := node.Values.IntoNamed("value", "type")
	if err != nil {
		return nil, argsErr(err)
	}
	p, err := st.pattern(fields[0])
	if err != nil {
		return nil, err
	}
	t, err := st.evalType(fields[1])
	if err != nil {
		return nil, err
	}
	return p, at(node.Span, p.Info().Type.MakeSame(t))
}

// letParts compiles both sides of a let. The pattern goes first so a
// function value can be named after the binding.
func letParts(st *state, node *ast.Complex) (ir.Pattern, ir.Expr, error) {
	fields, err := node.Values.IntoNamed("pattern", "value")
	if err != nil {
		return nil, nil, argsErr(err)
	}
	p, err := st.pattern(fields[0])
	if err != nil {
		return nil, nil, err
	}
	hint := ""
	if bp, ok := p.(*ir.BindingPattern); ok {
		hint = bp.Binding.Symbol.Name
	}
	v, err := st.named(hint).expr(fields[1])
	if err != nil {
		return nil, nil, err
	}
	if err := p.Info().Type.MakeSame(v.Info().Type); err != nil {
		return nil, nil, at(node.Span, err)
	}
	return p, v, nil
}

func compileLet(st *state, node *ast.Complex) (ir.Expr, error) {
	p, v, err := letParts(st, node)
	if err != nil {
		return nil, err
	}
	inject(st.env, ir.PatternBindings(p))
	return &ir.Let{Data: data(types.Known(types.Unit), node), Pattern: p, Value: v}, nil
}

// compileConstLet evaluates the value right away and binds the names to
// the results, so later code sees constants instead of variables.
func compileConstLet(st *state, node *ast.Complex) (ir.Expr, error) {
	p, v, err := letParts(st, node)
	if err != nil {
		return nil, err
	}
	value, err := st.eval(v)
	if err != nil {
		return nil, err
	}
	if err := v.Info().Type.MakeSame(value.Type()); err != nil {
		return nil, at(node.Span, err)
	}
	bound := scope.NewRoot[ir.Value]()
	if err := st.c.interp.Bind(bound, p, value); err != nil {
		return nil, err
	}
	for _, e := range bound.Locals() {
		st.env.Insert(e.Symbol.Name, e.Value)
	}
	return &ir.Let{Data: data(types.Known(types.Unit), node), Pattern: p, Value: v, Const: true}, nil
}

func compileCall(st *state, node *ast.Complex) (ir.Expr, error) {
	req, opt, err := node.Values.IntoNamedOpt([]string{"f"}, []string{"arg"})
	if err != nil {
		return nil, argsErr(err)
	}
	f, err := st.plain().expr(req[0])
	if err != nil {
		return nil, err
	}
	var arg ir.Expr = unitExpr(node.Span)
	if opt[0].OK {
		if arg, err = st.plain().expr(opt[0].Value); err != nil {
			return nil, err
		}
	}
	return st.makeCall(f, arg, node.Span)
}

func compileThen(st *state, node *ast.Complex) (ir.Expr, error) {
	items, trailing, err := collectList(node, "a", "b")
	if err != nil {
		return nil, err
	}
	list := make([]ir.Expr, 0, len(items)+1)
	for _, item := range items {
		e, err := st.plain().expr(item)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if trailing {
		list = append(list, unitExpr(node.Span))
	}
	last := list[len(list)-1]
	return &ir.Then{Data: data(last.Info().Type, node), List: list}, nil
}

func compileIf(st *state, node *ast.Complex) (ir.Expr, error) {
	req, opt, err := node.Values.IntoNamedOpt([]string{"cond", "then_case"}, []string{"else_case"})
	if err != nil {
		return nil, argsErr(err)
	}
	cond, err := st.plain().expr(req[0])
	if err != nil {
		return nil, err
	}
	if err := expectAt(cond.Info().Type, types.Bool, cond); err != nil {
		return nil, err
	}

	thenEnv := st.env.Child(scope.NonRecursive)
	inject(thenEnv, ir.CollectBindings(cond, ir.WhenTrue))
	thenCase, err := st.in(thenEnv).expr(req[1])
	if err != nil {
		return nil, err
	}
	e := &ir.If{Data: data(thenCase.Info().Type, node), Cond: cond, Then: thenCase}
	if !opt[0].OK {
		return e, expectAt(thenCase.Info().Type, types.Unit, thenCase)
	}
	elseCase, err := st.in(st.env.Child(scope.NonRecursive)).expr(opt[0].Value)
	if err != nil {
		return nil, err
	}
	e.Else = elseCase
	return e, at(node.Span, thenCase.Info().Type.MakeSame(elseCase.Info().Type))
}

func compileMatch(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("value", "branches")
	if err != nil {
		return nil, argsErr(err)
	}
	value, err := st.plain().expr(fields[0])
	if err != nil {
		return nil, err
	}

	branches := []ast.Ast{fields[1]}
	if c, ok := isBuiltin(fields[1], "scope"); ok {
		if branches[0], err = c.Values.IntoSingleNamed("e"); err != nil {
			return nil, argsErr(err)
		}
	}
	if c, ok := isBuiltin(branches[0], "merge"); ok {
		if branches, _, err = collectList(c, "a", "b"); err != nil {
			return nil, err
		}
	}

	m := &ir.Match{Data: data(types.New(), node), Value: value}
	for _, branch := range branches {
		c, ok := isBuiltin(branch, "function_def")
		if !ok {
			return nil, at(branch.NodeSpan(), argsErr(errors.New("a match branch must look like `pattern => body`")))
		}
		req, opt, err := c.Values.IntoNamedOpt([]string{"body"}, []string{"arg"})
		if err != nil || !opt[0].OK {
			return nil, at(c.Span, argsErr(errors.New("a match branch needs a pattern and a body")))
		}
		branchEnv := st.env.Child(scope.NonRecursive)
		bst := st.in(branchEnv)
		p, err := bst.pattern(opt[0].Value)
		if err != nil {
			return nil, err
		}
		if err := p.Info().Type.MakeSame(value.Info().Type); err != nil {
			return nil, at(c.Span, err)
		}
		inject(branchEnv, ir.PatternBindings(p))
		body, err := bst.expr(req[0])
		if err != nil {
			return nil, err
		}
		if err := body.Info().Type.MakeSame(m.Type); err != nil {
			return nil, at(body.Info().Span, err)
		}
		m.Branches = append(m.Branches, ir.MatchBranch{Pattern: p, Body: body})
	}
	return m, nil
}

func compileIs(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("value", "pattern")
	if err != nil {
		return nil, argsErr(err)
	}
	value, err := st.plain().expr(fields[0])
	if err != nil {
		return nil, err
	}
	p, err := st.pattern(fields[1])
	if err != nil {
		return nil, err
	}
	if err := p.Info().Type.MakeSame(value.Info().Type); err != nil {
		return nil, at(node.Span, err)
	}
	return &ir.Is{Data: data(types.Known(types.Bool), node), Value: value, Pattern: p}, nil
}

func variantName(node *ast.Complex) (string, ast.Opt[ast.Ast], error) {
	req, opt, err := node.Values.IntoNamedOpt([]string{"name"}, []string{"value"})
	if err != nil {
		return "", ast.Opt[ast.Ast]{}, argsErr(err)
	}
	name, ok := ast.Ident(req[0])
	if !ok {
		return "", ast.Opt[ast.Ast]{}, argsErr(errors.New("variant name must be an identifier"))
	}
	return name, opt[0], nil
}

func compileVariant(st *state, node *ast.Complex) (ir.Expr, error) {
	name, payload, err := variantName(node)
	if err != nil {
		return nil, err
	}
	e := &ir.VariantExpr{Data: data(types.Type{}, node), Name: name}
	var valueType *types.Type
	if payload.OK {
		if e.Value, err = st.plain().expr(payload.Value); err != nil {
			return nil, err
		}
		valueType = &e.Value.Info().Type
	}
	e.Type = types.InferVariant(name, valueType)
	return e, nil
}

func variantPattern(st *state, node *ast.Complex) (ir.Pattern, error) {
	name, payload, err := variantName(node)
	if err != nil {
		return nil, err
	}
	p := &ir.VariantPattern{Data: data(types.Type{}, node), Name: name}
	var valueType *types.Type
	if payload.OK {
		if p.Value, err = st.pattern(payload.Value); err != nil {
			return nil, err
		}
		valueType = &p.Value.Info().Type
	}
	p.Type = types.InferVariant(name, valueType)
	return p, nil
}

func compileNewtype(st *state, node *ast.Complex) (ir.Expr, error) {
	def, err := node.Values.IntoSingleNamed("def")
	if err != nil {
		return nil, argsErr(err)
	}
	e, err := st.plain().expr(def)
	if err != nil {
		return nil, err
	}
	return &ir.Newtype{Data: data(types.Known(types.TypeType), node), Def: e}, nil
}

func compileMerge(st *state, node *ast.Complex) (ir.Expr, error) {
	items, _, err := collectList(node, "a", "b")
	if err != nil {
		return nil, err
	}
	values := make([]ir.Expr, len(items))
	for i, item := range items {
		if values[i], err = st.plain().expr(item); err != nil {
			return nil, err
		}
	}
	return &ir.MakeMultiset{Data: data(types.Known(types.Multiset), node), Values: values}, nil
}

func compileScope(st *state, node *ast.Complex) (ir.Expr, error) {
	inner, err := node.Values.IntoSingleNamed("e")
	if err != nil {
		return nil, argsErr(err)
	}
	e, err := st.in(st.env.Child(scope.NonRecursive)).named(st.hint).expr(inner)
	if err != nil {
		return nil, err
	}
	return &ir.ScopeExpr{Data: data(e.Info().Type, node), Expr: e}, nil
}

func scopePattern(st *state, node *ast.Complex) (ir.Pattern, error) {
	inner, err := node.Values.IntoSingleNamed("e")
	if err != nil {
		return nil, argsErr(err)
	}
	return st.pattern(inner)
}

func compileMacro(st *state, node *ast.Complex) (ir.Expr, error) {
	def, err := node.Values.IntoSingleNamed("def")
	if err != nil {
		return nil, argsErr(err)
	}
	e, err := st.expr(def)
	if err != nil {
		return nil, err
	}
	v, err := st.eval(e)
	if err != nil {
		return nil, err
	}
	f, ok := v.(ir.Function)
	if !ok {
		return nil, errors.Errorf("a macro must be defined by a function, got %s", v)
	}
	return constant(ir.Macro{Fn: f.Fn}, node.Span), nil
}

func compileFunction(st *state, node *ast.Complex) (ir.Expr, error) {
	req, opt, err := node.Values.IntoNamedOpt([]string{"body"}, []string{"arg", "result_type"})
	if err != nil {
		return nil, argsErr(err)
	}
	sig := types.Function{Arg: types.New(), Result: types.New()}
	if opt[1].OK {
		t, err := st.evalType(opt[1].Value)
		if err != nil {
			return nil, err
		}
		if err := sig.Result.MakeSame(t); err != nil {
			return nil, at(opt[1].Value.NodeSpan(), err)
		}
	}
	slot := ir.NewFnSlot(st.fnName("fn", node))
	st.spawnBody(slot, opt[0], req[0], sig, node)
	return &ir.FunctionExpr{Data: data(types.Known(sig), node), Fn: slot, Sig: sig}, nil
}

func compileTemplate(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("arg", "body")
	if err != nil {
		return nil, argsErr(err)
	}
	slot := ir.NewFnSlot(st.fnName("template", node))
	sig := types.Function{Arg: types.New(), Result: types.New()}
	st.spawnBody(slot, ast.Opt[ast.Ast]{Value: fields[0], OK: true}, fields[1], sig, node)
	t := types.Known(types.Template{Fn: slot, Name: slot.Name})
	return &ir.TemplateExpr{Data: data(t, node), Fn: slot}, nil
}

func compileInstantiate(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("template", "arg")
	if err != nil {
		return nil, argsErr(err)
	}
	t, err := st.plain().expr(fields[0])
	if err != nil {
		return nil, err
	}
	arg, err := st.plain().expr(fields[1])
	if err != nil {
		return nil, err
	}
	return st.instantiate(t, arg, node.Span)
}

// compileStruct compiles a `rec` group. Its body runs in a Recursive scope,
// so function bodies in it can refer to members declared after them.
func compileStruct(st *state, node *ast.Complex) (ir.Expr, error) {
	body, err := node.Values.IntoSingleNamed("body")
	if err != nil {
		return nil, argsErr(err)
	}
	inner := st.env.Child(scope.Recursive)
	e, err := func() (ir.Expr, error) {
		// Every member is declared once the body is compiled, so waiters
		// are released before the region ends.
		defer inner.Release()
		defer inner.Close()
		return st.owning(inner).expr(body)
	}()
	if err != nil {
		return nil, err
	}
	bindings := ir.CollectBindings(e, ir.Unconditional)
	fields := ast.NewTuple[types.Type]()
	for _, b := range bindings {
		fields.Add(b.Symbol.Name, b.Type)
	}
	return &ir.Recursive{
		Data:     data(types.Known(types.Tuple{Fields: fields}), node),
		Body:     e,
		Bindings: bindings,
	}, nil
}

func compileTuple(st *state, node *ast.Complex) (ir.Expr, error) {
	items, _, err := collectList(node, "a", "b")
	if err != nil {
		return nil, err
	}
	return st.tupleOf(items, node)
}

func compileField(st *state, node *ast.Complex) (ir.Expr, error) {
	return st.tupleOf([]ast.Ast{node}, node)
}

func tuplePattern(st *state, node *ast.Complex) (ir.Pattern, error) {
	items, _, err := collectList(node, "a", "b")
	if err != nil {
		return nil, err
	}
	return st.tuplePatternOf(items, node)
}

func fieldPattern(st *state, node *ast.Complex) (ir.Pattern, error) {
	return st.tuplePatternOf([]ast.Ast{node}, node)
}

func compileFieldAccess(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("obj", "field")
	if err != nil {
		return nil, argsErr(err)
	}
	tok, ok := ast.Token(fields[1])
	if !ok || (tok.Kind != lexer.Ident && tok.Kind != lexer.Number) {
		return nil, argsErr(errors.New("field name must be an identifier or an index"))
	}
	field := tok.Value
	obj, err := st.plain().expr(fields[0])
	if err != nil {
		return nil, err
	}
	objType := obj.Info().Type
	// Reading the type applies a pending default, such as a tuple literal's.
	if _, err := objType.Inferred(); err != nil {
		var pending *types.NotInferredError
		if !errors.As(err, &pending) {
			return nil, at(obj.Info().Span, err)
		}
	}
	result := types.New()
	err = objType.AddCheck(func(shape types.Inferred) error {
		switch shape := shape.(type) {
		case types.Tuple:
			if t, ok := shape.Fields.Get(field); ok {
				return result.MakeSame(t)
			}
			if i, err := strconv.Atoi(field); err == nil && i >= 0 && i < len(shape.Fields.Unnamed) {
				return result.MakeSame(shape.Fields.Unnamed[i])
			}
			return errors.Errorf("%s has no field %s", shape, field)
		case types.Primitive:
			if shape == types.SyntaxModuleType {
				return result.Expect(types.SyntaxDefinitionType)
			}
		}
		return errors.Errorf("%s has no fields", shape)
	})
	if err != nil {
		return nil, at(node.Span, err)
	}
	return &ir.FieldAccess{Data: data(result, node), Obj: obj, Field: field}, nil
}

func compileFunctionType(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("arg", "result")
	if err != nil {
		return nil, argsErr(err)
	}
	parts := make([]ir.Expr, 2)
	for i, field := range fields {
		if parts[i], err = st.plain().expr(field); err != nil {
			return nil, err
		}
		if err := expectAt(parts[i].Info().Type, types.TypeType, parts[i]); err != nil {
			return nil, err
		}
	}
	return &ir.FunctionType{Data: data(types.Known(types.TypeType), node), Arg: parts[0], Result: parts[1]}, nil
}

// compileUnit builds `()`, which is the unit value or, in a type position,
// the unit type.
func compileUnit(_ *state, node *ast.Complex) (ir.Expr, error) {
	t := types.WithDefault(types.Unit)
	_ = t.AddCheck(func(shape types.Inferred) error {
		if shape != types.Unit && shape != types.TypeType {
			return &types.UnificationError{Left: shape, Right: types.Unit}
		}
		return nil
	})
	return &ir.UnitExpr{Data: data(t, node)}, nil
}

func unitPattern(_ *state, node *ast.Complex) (ir.Pattern, error) {
	return &ir.UnitPattern{Data: data(types.Known(types.Unit), node)}, nil
}

func compilePlaceholder(_ *state, node *ast.Complex) (ir.Expr, error) {
	return placeholder(node.Span), nil
}

func placeholderPattern(_ *state, node *ast.Complex) (ir.Pattern, error) {
	return &ir.PlaceholderPattern{Data: data(types.New(), node)}, nil
}

func compileQuote(st *state, node *ast.Complex) (ir.Expr, error) {
	inner, err := node.Values.IntoSingleNamed("expr")
	if err != nil {
		return nil, argsErr(err)
	}
	return st.quote(inner)
}

// quote builds an expression producing node as an ast value, with every
// unquoted part compiled and spliced in.
func (st *state) quote(node ast.Ast) (ir.Expr, error) {
	c, ok := node.(*ast.Complex)
	if !ok {
		return constant(ir.AstValue{Ast: node}, node.NodeSpan()), nil
	}
	if _, ok := isBuiltin(c, "unquote"); ok {
		inner, err := c.Values.IntoSingleNamed("expr")
		if err != nil {
			return nil, argsErr(err)
		}
		e, err := st.plain().expr(inner)
		if err != nil {
			return nil, err
		}
		return e, expectAt(e.Info().Type, types.AstType, e)
	}
	values, err := ast.MapTupleErr(c.Values, func(_ string, child ast.Ast) (ir.Expr, error) {
		return st.quote(child)
	})
	if err != nil {
		return nil, err
	}
	return &ir.AstExpr{Data: data(types.Known(types.AstType), c), Definition: c.Definition, Values: values}, nil
}

func compileUnquote(*state, *ast.Complex) (ir.Expr, error) {
	return nil, errors.New("unquote can only be used inside quote")
}

func compileUse(st *state, node *ast.Complex) (ir.Expr, error) {
	ns, err := node.Values.IntoSingleNamed("namespace")
	if err != nil {
		return nil, argsErr(err)
	}
	e, err := st.plain().expr(ns)
	if err != nil {
		return nil, err
	}
	v, err := st.eval(e)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case ir.Tuple:
		for name, field := range v.Fields.All() {
			if name != "" {
				st.env.Insert(name, field)
			}
		}
	case ir.SyntaxModule:
		for _, def := range v.Defs {
			st.env.Insert(def.Name, ir.SyntaxDefinition{Def: def})
			st.env.AddSyntax(def)
		}
	default:
		return nil, at(e.Info().Span, errors.Errorf("can not use %s", v))
	}
	return &ir.Use{Data: data(types.Known(types.Unit), node), Namespace: e}, nil
}

// compileSyntaxModule captures the syntax declared in its body.
func compileSyntaxModule(st *state, node *ast.Complex) (ir.Expr, error) {
	body, err := node.Values.IntoSingleNamed("body")
	if err != nil {
		return nil, argsErr(err)
	}
	inner := st.env.Child(scope.NonRecursive)
	if _, err := st.in(inner).expr(body); err != nil {
		return nil, err
	}
	return constant(ir.SyntaxModule{Defs: inner.Syntax()}, node.Span), nil
}

func compileImplSyntax(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("def", "impl")
	if err != nil {
		return nil, argsErr(err)
	}
	v, err := st.plain().evalConst(fields[0])
	if err != nil {
		return nil, err
	}
	def, ok := v.(ir.SyntaxDefinition)
	if !ok {
		return nil, at(fields[0].NodeSpan(), errors.Errorf("expected a syntax definition, got %s", v))
	}
	impl, err := st.named(def.Def.Name).evalConst(fields[1])
	if err != nil {
		return nil, err
	}
	if err := st.c.Implement(def.Def, impl); err != nil {
		return nil, at(node.Span, err)
	}
	st.c.interp.Emit(TraceSyntaxImplemented, &node.Span, map[string]string{"syntax": def.Def.Name})
	return unitExpr(node.Span), nil
}

func compileCast(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("value", "target")
	if err != nil {
		return nil, argsErr(err)
	}
	value, err := st.plain().expr(fields[0])
	if err != nil {
		return nil, err
	}
	target, err := st.plain().evalConst(fields[1])
	if err != nil {
		return nil, err
	}
	var result types.Type
	switch t := target.(type) {
	case ir.TypeValue:
		result = t.T
	case ir.Template:
		// The result type depends on the value, which must be known now.
		v, err := st.eval(value)
		if err != nil {
			return nil, err
		}
		r, err := st.c.interp.Call(st.ctx, t, v)
		if err != nil {
			return nil, err
		}
		if result, err = evaluator.AsType(r); err != nil {
			return nil, at(fields[1].NodeSpan(), err)
		}
	default:
		return nil, at(fields[1].NodeSpan(), castTargetErr(target))
	}
	return &ir.Cast{Data: data(result, node), Value: value, Target: target}, nil
}

func compileImplCast(st *state, node *ast.Complex) (ir.Expr, error) {
	fields, err := node.Values.IntoNamed("value", "target", "impl")
	if err != nil {
		return nil, argsErr(err)
	}
	values := make([]ir.Value, len(fields))
	for i, field := range fields {
		if values[i], err = st.plain().evalConst(field); err != nil {
			return nil, err
		}
	}
	switch values[1].(type) {
	case ir.TypeValue, ir.Template:
	default:
		return nil, at(fields[1].NodeSpan(), castTargetErr(values[1]))
	}
	st.c.interp.Casts().Register(values[0], values[1], values[2])
	return unitExpr(node.Span), nil
}

func castTargetErr(target ir.Value) error {
	return errors.Errorf("cast target must be a type or a template, got %s", target)
}

func compileImport(st *state, node *ast.Complex) (ir.Expr, error) {
	pathNode, err := node.Values.IntoSingleNamed("path")
	if err != nil {
		return nil, argsErr(err)
	}
	v, err := st.plain().evalConst(pathNode)
	if err != nil {
		return nil, err
	}
	p, ok := v.(ir.String)
	if !ok {
		return nil, at(pathNode.NodeSpan(), errors.Errorf("import path must be a string, got %s", v))
	}
	if st.c.opts.importer == nil {
		return nil, errors.New("import is not available here")
	}
	path := string(p)
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(node.Span.File), path)
	}
	value, err := st.c.opts.importer.Import(st.ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "importing %s", path)
	}
	return constant(value, node.Span), nil
}
