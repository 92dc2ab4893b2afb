package ir_test

import (
	"context"
	"testing"
	"time"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/types"
)

func TestValueStrings(t *testing.T) {
	fields := ast.NewTuple[ir.Value]()
	fields.Add("", ir.Int32(1))
	fields.Add("name", ir.String("x"))

	tests := []struct {
		value ir.Value
		want  string
	}{
		{ir.Unit{}, "()"},
		{ir.Bool(true), "true"},
		{ir.Int64(-3), "-3"},
		{ir.Float64(2), "2.0"},
		{ir.Float64(0.5), "0.5"},
		{ir.String("hi"), `"hi"`},
		{ir.Tuple{Fields: fields}, `(1, name: "x")`},
		{ir.Variant{Name: "None"}, ".None"},
		{ir.Variant{Name: "Some", Value: ir.Int32(4)}, ".Some(4)"},
		{ir.TypeValue{T: types.Known(types.Int32)}, "int32"},
	}
	for _, tt := range tests {
		if got := tt.value.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := ir.Describe(ir.Int32(7)); got != "7 :: int32" {
		t.Errorf("Describe = %q", got)
	}
	unknown := ir.Variant{Name: "A", Ty: types.New()}
	if got := ir.Describe(unknown); got != ".A" {
		t.Errorf("Describe without a known type = %q", got)
	}
}

func TestFnSlot(t *testing.T) {
	slot := ir.NewFnSlot("f")
	if _, ok := slot.Ready(); ok {
		t.Fatal("empty slot reported ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := slot.Wait(ctx); err == nil {
		t.Fatal("Wait on an empty slot should time out")
	}

	fn := &ir.CompiledFn{}
	go slot.Fill(fn, nil)
	got, err := slot.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != fn {
		t.Error("Wait returned a different body")
	}

	defer func() {
		if recover() == nil {
			t.Error("second Fill should panic")
		}
	}()
	slot.Fill(fn, nil)
}

func binding(name string) *ir.BindingPattern {
	return &ir.BindingPattern{Binding: ir.NewBinding(name, types.New())}
}

func TestCollectBindings(t *testing.T) {
	x, y, x2, z := binding("x"), binding("y"), binding("x"), binding("z")
	fields := ast.NewTuple[ir.Pattern]()
	fields.Add("", y)
	fields.Add("b", &ir.VariantPattern{Name: "Some", Value: x2})

	body := &ir.Then{List: []ir.Expr{
		&ir.Let{Pattern: x},
		&ir.Let{Pattern: &ir.TuplePattern{Fields: fields}},
		&ir.Is{Pattern: z},
	}}

	var names []string
	for _, b := range ir.CollectBindings(body, ir.Unconditional) {
		names = append(names, b.Symbol.Name)
	}
	if len(names) != 2 || names[0] != "y" || names[1] != "x" {
		t.Errorf("bindings = %v, want [y x]", names)
	}

	withIs := ir.CollectBindings(body, ir.WhenTrue)
	if last := withIs[len(withIs)-1]; last != z.Binding {
		t.Errorf("last binding = %s, want z", last.Symbol)
	}
}

func TestCastMap(t *testing.T) {
	casts := ir.NewCastMap()
	int32Type := ir.TypeValue{T: types.Known(types.Int32)}
	stringType := ir.TypeValue{T: types.Known(types.String)}

	casts.Register(int32Type, stringType, ir.String("first"))
	casts.Register(ir.TypeValue{T: types.Known(types.Int32)}, stringType, ir.String("second"))

	impl, ok := casts.Find(ir.TypeValue{T: types.Known(types.Int32)}, stringType)
	if !ok || impl != ir.String("second") {
		t.Errorf("Find = %v, %v", impl, ok)
	}
	if _, ok := casts.Find(stringType, int32Type); ok {
		t.Error("found a cast that was never registered")
	}
}
