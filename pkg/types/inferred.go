package types

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/scope"
)

// Inferred is a resolved type shape.
type Inferred interface {
	String() string
	inferred()
}

// Primitive is a shape without parameters.
type Primitive int

const (
	Unit Primitive = iota
	Bool
	Int32
	Int64
	Float64
	String
	TypeType
	AstType
	SyntaxDefinitionType
	SyntaxModuleType
	Multiset
)

var primitiveNames = map[Primitive]string{
	Unit:                 "unit",
	Bool:                 "bool",
	Int32:                "int32",
	Int64:                "int64",
	Float64:              "float64",
	String:               "string",
	TypeType:             "type",
	AstType:              "ast",
	SyntaxDefinitionType: "syntax_definition",
	SyntaxModuleType:     "syntax_module",
	Multiset:             "multiset",
}

// ParsePrimitive returns the primitive named name.
func ParsePrimitive(name string) (Primitive, bool) {
	for p, n := range primitiveNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Primitive(%d)", int(p))
}

// IsNumber reports whether p is a numeric kind.
func (p Primitive) IsNumber() bool {
	return p == Int32 || p == Int64 || p == Float64
}

// Tuple is a tuple of types.
type Tuple struct {
	Fields ast.Tuple[Type]
}

func (t Tuple) String() string {
	return ast.FormatTuple(t.Fields, Type.String)
}

// Function maps an argument type to a result type.
type Function struct {
	Arg    Type
	Result Type
}

func (f Function) String() string {
	return fmt.Sprintf("%s -> %s", f.Arg, f.Result)
}

// Template is the type of a template value. Fn identifies the template and
// is compared by identity.
type Template struct {
	Fn   any
	Name string
}

func (t Template) String() string {
	if t.Name != "" {
		return "template " + t.Name
	}
	return "template"
}

// VariantCase is one alternative of a variant type.
type VariantCase struct {
	Name  string
	Value *Type
}

// Variant is a set of named alternatives.
type Variant struct {
	Cases []VariantCase
}

// Find returns the case named name.
func (v Variant) Find(name string) (VariantCase, bool) {
	for _, c := range v.Cases {
		if c.Name == name {
			return c, true
		}
	}
	return VariantCase{}, false
}

func (v Variant) String() string {
	parts := make([]string, len(v.Cases))
	for i, c := range v.Cases {
		if c.Value != nil {
			parts[i] = fmt.Sprintf(".%s(%s)", c.Name, *c.Value)
		} else {
			parts[i] = "." + c.Name
		}
	}
	return strings.Join(parts, " | ")
}

// Binding refers to a type bound by a template argument pattern. It is
// replaced by Substitute when the template is instantiated.
type Binding struct {
	Symbol scope.Symbol
}

func (b Binding) String() string { return b.Symbol.Name }

func (Primitive) inferred() {}
func (Tuple) inferred()     {}
func (Function) inferred()  {}
func (Template) inferred()  {}
func (Variant) inferred()   {}
func (Binding) inferred()   {}
