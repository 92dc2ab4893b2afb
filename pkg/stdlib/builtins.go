package stdlib

import (
	"io"

	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/types"
)

// Capability identifiers checked before a native is handed out.
const (
	CapIO = "io"
	CapFS = "fs"
)

func typeConst(name string, p types.Primitive) Fn {
	return Fn{Name: name, Const: ir.TypeValue{T: types.Known(p)}}
}

// RegisterDefaults adds every native that has no side effects.
func RegisterDefaults(r *Registry) {
	// Types
	r.Register(typeConst("unit", types.Unit))
	r.Register(typeConst("bool", types.Bool))
	r.Register(typeConst("int32", types.Int32))
	r.Register(typeConst("int64", types.Int64))
	r.Register(typeConst("float64", types.Float64))
	r.Register(typeConst("string", types.String))
	r.Register(typeConst("type", types.TypeType))
	r.Register(typeConst("ast", types.AstType))
	r.Register(typeConst("syntax_definition", types.SyntaxDefinitionType))
	r.Register(typeConst("syntax_module", types.SyntaxModuleType))

	// Constants
	r.Register(Fn{Name: "true", Const: ir.Bool(true)})
	r.Register(Fn{Name: "false", Const: ir.Bool(false)})

	// Math
	r.Register(Fn{Name: "add", Execute: arith("add", addOp)})
	r.Register(Fn{Name: "sub", Execute: arith("sub", subOp)})
	r.Register(Fn{Name: "mul", Execute: arith("mul", mulOp)})
	r.Register(Fn{Name: "div", Execute: arith("div", divOp)})
	r.Register(Fn{Name: "rem", Execute: arith("rem", remOp)})
	r.Register(Fn{Name: "neg", Execute: stdlibNeg})

	// Predicates
	r.Register(Fn{Name: "eq", Execute: compare("eq", func(c int) bool { return c == 0 })})
	r.Register(Fn{Name: "ne", Execute: compare("ne", func(c int) bool { return c != 0 })})
	r.Register(Fn{Name: "lt", Execute: compare("lt", func(c int) bool { return c < 0 })})
	r.Register(Fn{Name: "le", Execute: compare("le", func(c int) bool { return c <= 0 })})
	r.Register(Fn{Name: "gt", Execute: compare("gt", func(c int) bool { return c > 0 })})
	r.Register(Fn{Name: "ge", Execute: compare("ge", func(c int) bool { return c >= 0 })})
	r.Register(Fn{Name: "not", Execute: stdlibNot})

	// String ops
	r.Register(Fn{Name: "concat", Execute: stdlibConcat})
	r.Register(Fn{Name: "to_string", Execute: stdlibToString})
	r.Register(Fn{Name: "string_length", Execute: stdlibStringLength})
	r.Register(Fn{Name: "to_json", Execute: stdlibToJSON})
}

// RegisterIO adds the natives that talk to the outside world. Output goes
// to stdout.
func RegisterIO(r *Registry, stdout io.Writer) {
	r.Register(Fn{Name: "print", CapabilityID: CapIO, Execute: stdlibPrint(stdout)})
	r.Register(Fn{Name: "dbg", CapabilityID: CapIO, Execute: stdlibDbg(stdout)})
	r.Register(Fn{Name: "read_file", CapabilityID: CapFS, Execute: stdlibReadFile})
}

// pair unpacks an (a: _, b: _) argument.
func pair(name string, arg ir.Value) (ir.Value, ir.Value, error) {
	t, ok := arg.(ir.Tuple)
	if !ok {
		return nil, nil, errorf(name, "expected (a, b), got %s", arg)
	}
	values, err := t.Fields.IntoNamed("a", "b")
	if err != nil {
		return nil, nil, errorf(name, "%s", err)
	}
	return values[0], values[1], nil
}

// single unwraps a one-field tuple such as (x: 1), which is how operator
// syntax passes its operand.
func single(arg ir.Value) ir.Value {
	if t, ok := arg.(ir.Tuple); ok && t.Fields.Len() == 1 {
		return t.Fields.Values()[0]
	}
	return arg
}
