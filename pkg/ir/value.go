package ir

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/types"
)

// Value is a runtime value. The same values flow through compile-time
// evaluation, macro arguments and program results.
type Value interface {
	Type() types.Type
	String() string
	value()
}

// Unit is the empty value.
type Unit struct{}

func (Unit) Type() types.Type { return types.Known(types.Unit) }
func (Unit) String() string   { return "()" }

// Bool is a boolean.
type Bool bool

func (Bool) Type() types.Type { return types.Known(types.Bool) }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Int32 is a 32-bit integer.
type Int32 int32

func (Int32) Type() types.Type { return types.Known(types.Int32) }
func (n Int32) String() string { return strconv.FormatInt(int64(n), 10) }

// Int64 is a 64-bit integer.
type Int64 int64

func (Int64) Type() types.Type { return types.Known(types.Int64) }
func (n Int64) String() string { return strconv.FormatInt(int64(n), 10) }

// Float64 is a floating point number.
type Float64 float64

func (Float64) Type() types.Type { return types.Known(types.Float64) }
func (f Float64) String() string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// String is a string.
type String string

func (String) Type() types.Type { return types.Known(types.String) }
func (s String) String() string { return strconv.Quote(string(s)) }

// Tuple is a tuple of values.
type Tuple struct {
	Fields ast.Tuple[Value]
}

func (t Tuple) Type() types.Type {
	return types.Known(types.Tuple{Fields: ast.MapTuple(t.Fields, Value.Type)})
}

func (t Tuple) String() string {
	return ast.FormatTuple(t.Fields, Value.String)
}

// TypeValue is a type used as a value.
type TypeValue struct {
	T types.Type
}

func (TypeValue) Type() types.Type { return types.Known(types.TypeType) }
func (t TypeValue) String() string { return t.T.String() }

// AstValue is a quoted syntax tree.
type AstValue struct {
	Ast ast.Ast
}

func (AstValue) Type() types.Type { return types.Known(types.AstType) }
func (a AstValue) String() string { return "quote(" + a.Ast.Kind() + ")" }

// SyntaxDefinition is a grammar rule used as a value.
type SyntaxDefinition struct {
	Def *ast.SyntaxDefinition
}

func (SyntaxDefinition) Type() types.Type { return types.Known(types.SyntaxDefinitionType) }
func (s SyntaxDefinition) String() string { return s.Def.String() }

// SyntaxModule is a captured set of grammar rules.
type SyntaxModule struct {
	Defs []*ast.SyntaxDefinition
}

func (SyntaxModule) Type() types.Type { return types.Known(types.SyntaxModuleType) }
func (m SyntaxModule) String() string {
	names := make([]string, len(m.Defs))
	for i, def := range m.Defs {
		names[i] = def.Name
	}
	return "syntax_module(" + strings.Join(names, ", ") + ")"
}

// Find returns the definition named name.
func (m SyntaxModule) Find(name string) (*ast.SyntaxDefinition, bool) {
	for _, def := range m.Defs {
		if def.Name == name {
			return def, true
		}
	}
	return nil, false
}

// BindingValue is what a name declared by a pattern resolves to while the
// code using it is being compiled.
type BindingValue struct {
	Binding *Binding
}

func (b BindingValue) Type() types.Type { return b.Binding.Type }
func (b BindingValue) String() string   { return "binding " + b.Binding.Symbol.String() }

// Function is a closure.
type Function struct {
	Fn *Closure
}

func (f Function) Type() types.Type { return types.Known(f.Fn.Type) }
func (f Function) String() string   { return "fn " + f.Fn.Slot.Name }

// Template is a closure whose result type depends on its argument.
type Template struct {
	Fn *Closure
}

func (t Template) Type() types.Type {
	return types.Known(types.Template{Fn: t.Fn.Slot, Name: t.Fn.Slot.Name})
}
func (t Template) String() string { return "template " + t.Fn.Slot.Name }

// Macro is a function applied to syntax at compile time.
type Macro struct {
	Fn *Closure
}

func (m Macro) Type() types.Type { return types.Known(m.Fn.Type) }
func (m Macro) String() string   { return "macro " + m.Fn.Slot.Name }

// NativeFunc implements a native function.
type NativeFunc func(ctx context.Context, arg Value) (Value, error)

// Native is a function implemented by the host.
type Native struct {
	Name string
	Impl NativeFunc
	Ty   types.Type
}

func (n Native) Type() types.Type { return n.Ty }
func (n Native) String() string   { return fmt.Sprintf("native %q", n.Name) }

// Variant is a value of a variant type.
type Variant struct {
	Name  string
	Value Value
	Ty    types.Type
}

func (v Variant) Type() types.Type { return v.Ty }
func (v Variant) String() string {
	if v.Value == nil {
		return "." + v.Name
	}
	return fmt.Sprintf(".%s(%s)", v.Name, v.Value)
}

// Multiset is an unordered collection of values.
type Multiset struct {
	Values []Value
}

func (Multiset) Type() types.Type { return types.Known(types.Multiset) }
func (m Multiset) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = v.String()
	}
	return strings.Join(parts, " | ")
}

func (Unit) value()             {}
func (Bool) value()             {}
func (Int32) value()            {}
func (Int64) value()            {}
func (Float64) value()          {}
func (String) value()           {}
func (Tuple) value()            {}
func (TypeValue) value()        {}
func (AstValue) value()         {}
func (SyntaxDefinition) value() {}
func (SyntaxModule) value()     {}
func (BindingValue) value()     {}
func (Function) value()         {}
func (Template) value()         {}
func (Macro) value()            {}
func (Native) value()           {}
func (Variant) value()          {}
func (Multiset) value()         {}

// Describe renders a value together with its type, as "7 :: int32".
func Describe(v Value) string {
	ty := v.Type()
	if _, err := ty.Inferred(); err != nil {
		return v.String()
	}
	return fmt.Sprintf("%s :: %s", v, ty)
}
