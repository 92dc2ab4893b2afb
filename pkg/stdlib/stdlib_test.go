package stdlib_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/stdlib"
)

func registry(out *bytes.Buffer) *stdlib.Registry {
	r := stdlib.NewRegistry()
	stdlib.RegisterDefaults(r)
	stdlib.RegisterIO(r, out)
	return r
}

func ab(a, b ir.Value) ir.Value {
	fields := ast.NewTuple[ir.Value]()
	fields.Add("a", a)
	fields.Add("b", b)
	return ir.Tuple{Fields: fields}
}

func call(t *testing.T, r *stdlib.Registry, name string, arg ir.Value) (ir.Value, error) {
	t.Helper()
	fn := r.Get(name)
	if fn == nil || fn.Execute == nil {
		t.Fatalf("native %q is not a function", name)
	}
	return fn.Execute(context.Background(), arg)
}

func TestNatives(t *testing.T) {
	r := registry(&bytes.Buffer{})
	tests := []struct {
		name string
		arg  ir.Value
		want ir.Value
	}{
		{"add", ab(ir.Int32(2), ir.Int32(3)), ir.Int32(5)},
		{"sub", ab(ir.Int64(2), ir.Int64(3)), ir.Int64(-1)},
		{"mul", ab(ir.Float64(1.5), ir.Float64(2)), ir.Float64(3)},
		{"div", ab(ir.Int32(7), ir.Int32(2)), ir.Int32(3)},
		{"rem", ab(ir.Int32(7), ir.Int32(2)), ir.Int32(1)},
		{"neg", ir.Int32(4), ir.Int32(-4)},
		{"lt", ab(ir.Int32(1), ir.Int32(2)), ir.Bool(true)},
		{"ge", ab(ir.String("a"), ir.String("b")), ir.Bool(false)},
		{"eq", ab(ir.Unit{}, ir.Unit{}), ir.Bool(true)},
		{"not", ir.Bool(true), ir.Bool(false)},
		{"concat", ab(ir.String("foo"), ir.String("bar")), ir.String("foobar")},
		{"to_string", ir.Int32(12), ir.String("12")},
		{"string_length", ir.String("héllo"), ir.Int32(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := call(t, r, tt.name, tt.arg)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNativeErrors(t *testing.T) {
	r := registry(&bytes.Buffer{})
	tests := []struct {
		name string
		arg  ir.Value
		want string
	}{
		{"div", ab(ir.Int32(1), ir.Int32(0)), "div: division by zero"},
		{"add", ab(ir.Int32(1), ir.Int64(1)), "add: expected two numbers of the same type, got 1 and 1"},
		{"add", ab(ir.Int32(2147483647), ir.Int32(1)), "add: int32 overflow"},
		{"add", ir.Int32(1), "add: expected (a, b), got 1"},
		{"lt", ab(ir.Unit{}, ir.Unit{}), "lt: can not compare () and ()"},
	}
	for _, tt := range tests {
		_, err := call(t, r, tt.name, tt.arg)
		if err == nil || err.Error() != tt.want {
			t.Errorf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestOutput(t *testing.T) {
	var out bytes.Buffer
	r := registry(&out)
	if _, err := call(t, r, "print", ir.String("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := call(t, r, "dbg", ir.Int32(7)); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "hello\n7 :: int32\n" {
		t.Errorf("output = %q", got)
	}
}

func TestCapabilities(t *testing.T) {
	natives := registry(&bytes.Buffer{}).Natives()
	if got := natives["read_file"].CapabilityID; got != stdlib.CapFS {
		t.Errorf("read_file capability = %q", got)
	}
	if got := natives["print"].CapabilityID; got != stdlib.CapIO {
		t.Errorf("print capability = %q", got)
	}
	if natives["int32"].Const == nil {
		t.Error("int32 should be a constant")
	}
}
