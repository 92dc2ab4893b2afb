// Package evaluator interprets compiled morph expressions.
//
// The same Interpreter serves compile-time evaluation (constants, type
// expressions, macro calls) and running the program.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/types"
)

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceRunStart       TraceEventType = "run_start"
	TraceRunEnd         TraceEventType = "run_end"
	TraceFnCallStart    TraceEventType = "fn_call_start"
	TraceFnCallEnd      TraceEventType = "fn_call_end"
	TraceNativeStart    TraceEventType = "native_start"
	TraceNativeEnd      TraceEventType = "native_end"
	TraceMatchStart     TraceEventType = "match_start"
	TraceMatchEnd       TraceEventType = "match_end"
	TraceBudgetExceeded TraceEventType = "budget_exceeded"
)

// TraceEvent represents a single trace event emitted during evaluation.
type TraceEvent struct {
	Timestamp string            `json:"ts"`
	RunID     string            `json:"runId"`
	Event     TraceEventType    `json:"event"`
	Span      *source.Span      `json:"span,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Native is a host function or constant reachable through `native "name"`.
type Native struct {
	Name string
	// CapabilityID names the capability the native needs, or "".
	CapabilityID string
	// Const is returned as is when set; otherwise Execute is wrapped into a
	// function value.
	Const   ir.Value
	Execute ir.NativeFunc
}

// Options configures an Interpreter.
type Options struct {
	AllowedCapabilities map[string]bool
	Natives             map[string]*Native
	Casts               *ir.CastMap
	Budget              Budget
	Trace               func(event TraceEvent)
	RunID               string
}

// RuntimeError represents an error raised while evaluating.
type RuntimeError struct {
	Code    string
	Message string
	Span    *source.Span
}

func (e *RuntimeError) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("%s: %s", e.Span, e.Message)
	}
	return e.Message
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *RuntimeError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(e.Code, e.Message, e.Span, "")
}

func runtimeErr(code string, span source.Span, format string, args ...any) error {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Span: &span}
}

// Interpreter evaluates ir expressions. It is safe for concurrent use.
type Interpreter struct {
	opts       Options
	startHires int64
	calls      atomic.Int64
}

// New returns an Interpreter. A nil Casts map is replaced by an empty one.
func New(opts Options) *Interpreter {
	if opts.Casts == nil {
		opts.Casts = ir.NewCastMap()
	}
	return &Interpreter{opts: opts, startHires: hiresNow()}
}

// Casts returns the cast implementations known to the interpreter.
func (in *Interpreter) Casts() *ir.CastMap { return in.opts.Casts }

// Usage reports the resources consumed so far.
func (in *Interpreter) Usage() BudgetTracker {
	return BudgetTracker{Calls: in.calls.Load(), ElapsedMs: hiresSinceMs(in.startHires)}
}

// Emit sends an event to the trace callback, if any.
func (in *Interpreter) Emit(event TraceEventType, span *source.Span, data map[string]string) {
	if in.opts.Trace == nil {
		return
	}
	in.opts.Trace(TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     in.opts.RunID,
		Event:     event,
		Span:      span,
		Data:      data,
	})
}

func (in *Interpreter) checkBudget(ctx context.Context, span source.Span) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	calls := in.calls.Add(1)
	b := in.opts.Budget
	if b.MaxCalls != nil && calls > *b.MaxCalls {
		in.Emit(TraceBudgetExceeded, &span, map[string]string{"budget": "calls"})
		return runtimeErr(diagnostics.EBudget, span, "call budget exceeded (max %d)", *b.MaxCalls)
	}
	if b.TimeMs != nil && hiresSinceMs(in.startHires) >= *b.TimeMs {
		in.Emit(TraceBudgetExceeded, &span, map[string]string{"budget": "time"})
		return runtimeErr(diagnostics.EBudget, span, "time budget exceeded (%dms)", *b.TimeMs)
	}
	return nil
}

// Eval evaluates e in env.
func (in *Interpreter) Eval(ctx context.Context, env *ir.Env, e ir.Expr) (ir.Value, error) {
	span := e.Info().Span
	switch e := e.(type) {
	case *ir.UnitExpr:
		if isTypeExpr(e) {
			return ir.TypeValue{T: types.Known(types.Unit)}, nil
		}
		return ir.Unit{}, nil

	case *ir.Constant:
		return e.Value, nil

	case *ir.Number:
		return evalNumber(e)

	case *ir.BindingExpr:
		if entry, ok := env.Get(scope.ByID(e.Binding.Symbol)); ok {
			return entry.Value, nil
		}
		if shape, ok := e.Binding.Type.Peek(); ok && shape == types.TypeType {
			return ir.TypeValue{T: types.Known(types.Binding{Symbol: e.Binding.Symbol})}, nil
		}
		return nil, runtimeErr(diagnostics.ERuntime, span, "%s is not available here", e.Binding.Symbol.Name)

	case *ir.NativeExpr:
		return in.evalNative(ctx, env, e)

	case *ir.Let:
		if e.Const {
			return ir.Unit{}, nil
		}
		v, err := in.Eval(ctx, env, e.Value)
		if err != nil {
			return nil, err
		}
		if err := in.Bind(env, e.Pattern, v); err != nil {
			return nil, err
		}
		return ir.Unit{}, nil

	case *ir.Call:
		f, err := in.Eval(ctx, env, e.F)
		if err != nil {
			return nil, err
		}
		arg, err := in.Eval(ctx, env, e.Arg)
		if err != nil {
			return nil, err
		}
		return in.call(ctx, span, f, arg)

	case *ir.Instantiate:
		t, err := in.Eval(ctx, env, e.Template)
		if err != nil {
			return nil, err
		}
		arg, err := in.Eval(ctx, env, e.Arg)
		if err != nil {
			return nil, err
		}
		return in.call(ctx, span, t, arg)

	case *ir.Then:
		var last ir.Value = ir.Unit{}
		for _, item := range e.List {
			v, err := in.Eval(ctx, env, item)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil

	case *ir.If:
		cond, err := in.Eval(ctx, env, e.Cond)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(ir.Bool)
		if !ok {
			return nil, runtimeErr(diagnostics.EType, span, "condition must be a bool, got %s", cond)
		}
		switch {
		case bool(b):
			return in.Eval(ctx, env.Child(scope.NonRecursive), e.Then)
		case e.Else != nil:
			return in.Eval(ctx, env.Child(scope.NonRecursive), e.Else)
		}
		return ir.Unit{}, nil

	case *ir.Match:
		return in.evalMatch(ctx, env, e)

	case *ir.Is:
		v, err := in.Eval(ctx, env, e.Value)
		if err != nil {
			return nil, err
		}
		matched, err := in.Match(env, e.Pattern, v)
		return ir.Bool(matched), err

	case *ir.VariantExpr:
		variant := ir.Variant{Name: e.Name, Ty: e.Type}
		if e.Value != nil {
			v, err := in.Eval(ctx, env, e.Value)
			if err != nil {
				return nil, err
			}
			variant.Value = v
		}
		return variant, nil

	case *ir.Newtype:
		def, err := in.Eval(ctx, env, e.Def)
		if err != nil {
			return nil, err
		}
		t, err := AsType(def)
		if err != nil {
			return nil, runtimeErr(diagnostics.EType, span, "newtype: %s", err)
		}
		return ir.TypeValue{T: t}, nil

	case *ir.MakeMultiset:
		values := make([]ir.Value, len(e.Values))
		for i, item := range e.Values {
			v, err := in.Eval(ctx, env, item)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return ir.Multiset{Values: values}, nil

	case *ir.ScopeExpr:
		return in.Eval(ctx, env.Child(scope.NonRecursive), e.Expr)

	case *ir.Recursive:
		inner := env.Child(scope.NonRecursive)
		if _, err := in.Eval(ctx, inner, e.Body); err != nil {
			return nil, err
		}
		fields := ast.NewTuple[ir.Value]()
		for _, b := range e.Bindings {
			entry, ok := inner.Get(scope.ByID(b.Symbol))
			if !ok {
				return nil, runtimeErr(diagnostics.ERuntime, span, "%s was declared but never bound", b.Symbol.Name)
			}
			fields.Add(b.Symbol.Name, entry.Value)
		}
		return ir.Tuple{Fields: fields}, nil

	case *ir.FunctionExpr:
		return ir.Function{Fn: &ir.Closure{Slot: e.Fn, Env: env, Type: e.Sig}}, nil

	case *ir.TemplateExpr:
		return ir.Template{Fn: &ir.Closure{Slot: e.Fn, Env: env}}, nil

	case *ir.TupleExpr:
		fields, err := ast.MapTupleErr(e.Fields, func(_ string, field ir.Expr) (ir.Value, error) {
			return in.Eval(ctx, env, field)
		})
		if err != nil {
			return nil, err
		}
		if !isTypeExpr(e) {
			return ir.Tuple{Fields: fields}, nil
		}
		fieldTypes, err := ast.MapTupleErr(fields, func(name string, v ir.Value) (types.Type, error) {
			return AsType(v)
		})
		if err != nil {
			return nil, runtimeErr(diagnostics.EType, span, "tuple type: %s", err)
		}
		return ir.TypeValue{T: types.Known(types.Tuple{Fields: fieldTypes})}, nil

	case *ir.FieldAccess:
		obj, err := in.Eval(ctx, env, e.Obj)
		if err != nil {
			return nil, err
		}
		return fieldOf(span, obj, e.Field)

	case *ir.FunctionType:
		arg, err := in.evalType(ctx, env, e.Arg)
		if err != nil {
			return nil, err
		}
		result, err := in.evalType(ctx, env, e.Result)
		if err != nil {
			return nil, err
		}
		return ir.TypeValue{T: types.Known(types.Function{Arg: arg, Result: result})}, nil

	case *ir.AstExpr:
		values, err := ast.MapTupleErr(e.Values, func(name string, field ir.Expr) (ast.Ast, error) {
			v, err := in.Eval(ctx, env, field)
			if err != nil {
				return nil, err
			}
			a, ok := v.(ir.AstValue)
			if !ok {
				return nil, runtimeErr(diagnostics.EType, field.Info().Span, "expected ast, got %s", v)
			}
			return a.Ast, nil
		})
		if err != nil {
			return nil, err
		}
		return ir.AstValue{Ast: &ast.Complex{Definition: e.Definition, Values: values, Span: span}}, nil

	case *ir.Use:
		return ir.Unit{}, nil

	case *ir.Cast:
		v, err := in.Eval(ctx, env, e.Value)
		if err != nil {
			return nil, err
		}
		impl, ok := in.opts.Casts.Find(v, e.Target)
		if !ok {
			return nil, runtimeErr(diagnostics.ECast, span, "no cast of %s to %s", v, e.Target)
		}
		return impl, nil
	}
	return nil, runtimeErr(diagnostics.ERuntime, span, "can not evaluate %T", e)
}

// evalType evaluates e, which must produce a type.
func (in *Interpreter) evalType(ctx context.Context, env *ir.Env, e ir.Expr) (types.Type, error) {
	v, err := in.Eval(ctx, env, e)
	if err != nil {
		return types.Type{}, err
	}
	t, err := AsType(v)
	if err != nil {
		return types.Type{}, runtimeErr(diagnostics.EType, e.Info().Span, "%s", err)
	}
	return t, nil
}

func isTypeExpr(e ir.Expr) bool {
	shape, err := e.Info().Type.Inferred()
	return err == nil && shape == types.TypeType
}

func evalNumber(e *ir.Number) (ir.Value, error) {
	shape, err := e.Type.Inferred()
	if err != nil {
		return nil, runtimeErr(diagnostics.EType, e.Span, "type of %s is not known", e.Raw)
	}
	switch shape {
	case types.Int32:
		n, err := strconv.ParseInt(e.Raw, 10, 32)
		if err != nil {
			return nil, runtimeErr(diagnostics.EType, e.Span, "%s is not a valid int32", e.Raw)
		}
		return ir.Int32(n), nil
	case types.Int64:
		n, err := strconv.ParseInt(e.Raw, 10, 64)
		if err != nil {
			return nil, runtimeErr(diagnostics.EType, e.Span, "%s is not a valid int64", e.Raw)
		}
		return ir.Int64(n), nil
	case types.Float64:
		f, err := strconv.ParseFloat(e.Raw, 64)
		if err != nil {
			return nil, runtimeErr(diagnostics.EType, e.Span, "%s is not a valid float64", e.Raw)
		}
		return ir.Float64(f), nil
	}
	return nil, runtimeErr(diagnostics.EType, e.Span, "number literal can not be of type %s", shape)
}

func (in *Interpreter) evalNative(ctx context.Context, env *ir.Env, e *ir.NativeExpr) (ir.Value, error) {
	nameValue, err := in.Eval(ctx, env, e.Name)
	if err != nil {
		return nil, err
	}
	name, ok := nameValue.(ir.String)
	if !ok {
		return nil, runtimeErr(diagnostics.EType, e.Span, "native name must be a string, got %s", nameValue)
	}
	native, ok := in.opts.Natives[string(name)]
	if !ok {
		return nil, runtimeErr(diagnostics.EUnknownNative, e.Span, "unknown native %q", string(name))
	}
	if native.Const != nil {
		return native.Const, nil
	}
	impl := native.Execute
	if native.CapabilityID != "" && !in.opts.AllowedCapabilities[native.CapabilityID] {
		// Denied natives can still be named, so a prelude may declare them;
		// only calling one fails.
		span := e.Span
		impl = func(context.Context, ir.Value) (ir.Value, error) {
			return nil, runtimeErr(diagnostics.ECapDenied, span,
				"native %q requires capability %q, which is not allowed", native.Name, native.CapabilityID)
		}
	}
	return ir.Native{Name: native.Name, Impl: impl, Ty: e.Type}, nil
}

func (in *Interpreter) evalMatch(ctx context.Context, env *ir.Env, e *ir.Match) (ir.Value, error) {
	v, err := in.Eval(ctx, env, e.Value)
	if err != nil {
		return nil, err
	}
	in.Emit(TraceMatchStart, &e.Span, nil)
	defer in.Emit(TraceMatchEnd, &e.Span, nil)
	for _, branch := range e.Branches {
		branchEnv := env.Child(scope.NonRecursive)
		matched, err := in.Match(branchEnv, branch.Pattern, v)
		if err != nil {
			return nil, err
		}
		if matched {
			return in.Eval(ctx, branchEnv, branch.Body)
		}
	}
	return nil, runtimeErr(diagnostics.EMatch, e.Span, "no branch matched %s", v)
}

func fieldOf(span source.Span, obj ir.Value, field string) (ir.Value, error) {
	switch obj := obj.(type) {
	case ir.Tuple:
		if v, ok := obj.Fields.Get(field); ok {
			return v, nil
		}
		if i, err := strconv.Atoi(field); err == nil && i >= 0 && i < len(obj.Fields.Unnamed) {
			return obj.Fields.Unnamed[i], nil
		}
	case ir.SyntaxModule:
		if def, ok := obj.Find(field); ok {
			return ir.SyntaxDefinition{Def: def}, nil
		}
	}
	return nil, runtimeErr(diagnostics.ERuntime, span, "%s has no field %q", obj, field)
}

// Call applies a function, template, macro or native to arg.
func (in *Interpreter) Call(ctx context.Context, f, arg ir.Value) (ir.Value, error) {
	return in.call(ctx, source.Span{}, f, arg)
}

func (in *Interpreter) call(ctx context.Context, span source.Span, f, arg ir.Value) (ir.Value, error) {
	if err := in.checkBudget(ctx, span); err != nil {
		return nil, err
	}
	var closure *ir.Closure
	switch f := f.(type) {
	case ir.Function:
		closure = f.Fn
	case ir.Template:
		closure = f.Fn
	case ir.Macro:
		closure = f.Fn
	case ir.Native:
		return in.callNative(ctx, span, f, arg)
	default:
		return nil, runtimeErr(diagnostics.EType, span, "%s is not a function", f)
	}

	compiled, err := closure.Slot.Wait(ctx)
	if err != nil {
		return nil, err
	}
	data := map[string]string{"fn": closure.Slot.Name}
	in.Emit(TraceFnCallStart, &span, data)
	defer in.Emit(TraceFnCallEnd, &span, data)

	callEnv := closure.Env.Child(scope.NonRecursive)
	if err := in.Bind(callEnv, compiled.Arg, arg); err != nil {
		return nil, err
	}
	return in.Eval(ctx, callEnv, compiled.Body)
}

func (in *Interpreter) callNative(ctx context.Context, span source.Span, f ir.Native, arg ir.Value) (ir.Value, error) {
	data := map[string]string{"native": f.Name}
	in.Emit(TraceNativeStart, &span, data)
	defer in.Emit(TraceNativeEnd, &span, data)

	result, err := f.Impl(ctx, arg)
	if err != nil {
		var rte *RuntimeError
		if errors.As(err, &rte) {
			return nil, err
		}
		return nil, runtimeErr(diagnostics.ERuntime, span, "native %q: %s", f.Name, err)
	}
	return result, nil
}
