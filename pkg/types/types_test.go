package types_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/types"
)

func mustInfer(t *testing.T, ty types.Type) types.Inferred {
	t.Helper()
	shape, err := ty.Inferred()
	if err != nil {
		t.Fatalf("Inferred: %v", err)
	}
	return shape
}

func TestMakeSameMergesUnresolved(t *testing.T) {
	a, b := types.New(), types.New()
	if err := a.MakeSame(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Expect(types.Int64); err != nil {
		t.Fatal(err)
	}
	if got := mustInfer(t, a); got != types.Int64 {
		t.Errorf("a = %v, want int64", got)
	}
	if !a.Same(b) {
		t.Error("expected a and b to share a cell")
	}
}

func TestMakeSameIdempotent(t *testing.T) {
	tests := []struct {
		name string
		ops  func(a, b types.Type) error
	}{
		{"twice", func(a, b types.Type) error {
			if err := a.MakeSame(b); err != nil {
				return err
			}
			return a.MakeSame(b)
		}},
		{"reversed", func(a, b types.Type) error {
			if err := a.MakeSame(b); err != nil {
				return err
			}
			return b.MakeSame(a)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := types.Known(types.Function{Arg: types.New(), Result: types.Known(types.Bool)})
			b := types.Known(types.Function{Arg: types.Known(types.String), Result: types.New()})
			if err := tt.ops(a, b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, ty := range []types.Type{a, b} {
				if got := ty.String(); got != "string -> bool" {
					t.Errorf("type = %s, want string -> bool", got)
				}
			}
		})
	}
}

func TestMismatchNamesBothShapes(t *testing.T) {
	err := types.Known(types.Int32).MakeSame(types.Known(types.String))
	var ue *types.UnificationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnificationError, got %v", err)
	}
	if ue.Left != types.Int32 || ue.Right != types.String {
		t.Errorf("shapes = %v, %v", ue.Left, ue.Right)
	}
	if err.Error() != "expected string, got int32" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestNestedMismatch(t *testing.T) {
	pair := func(a, b types.Inferred) types.Type {
		fields := ast.NewTuple[types.Type]()
		fields.Add("", types.Known(a))
		fields.Add("", types.Known(b))
		return types.Known(types.Tuple{Fields: fields})
	}
	err := pair(types.Int32, types.Bool).MakeSame(pair(types.Int32, types.String))
	var ue *types.UnificationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnificationError, got %v", err)
	}
	if ue.Left != types.Bool || ue.Right != types.String {
		t.Errorf("innermost shapes = %v, %v", ue.Left, ue.Right)
	}

	short := ast.NewTuple[types.Type]()
	short.Add("", types.New())
	if err := pair(types.Int32, types.Bool).MakeSame(types.Known(types.Tuple{Fields: short})); err == nil {
		t.Error("expected arity mismatch")
	}
}

func TestDefaultAppliesOnFirstRead(t *testing.T) {
	number := types.WithDefault(types.Int32)
	if _, ok := number.Peek(); ok {
		t.Fatal("default must not apply at creation")
	}
	if got := mustInfer(t, number); got != types.Int32 {
		t.Errorf("number = %v, want int32", got)
	}
	if err := number.Expect(types.Int64); err == nil {
		t.Error("a read default must stick")
	}
}

func TestAscriptionBeatsDefault(t *testing.T) {
	number := types.WithDefault(types.Int32)
	if err := number.Expect(types.Float64); err != nil {
		t.Fatal(err)
	}
	if got := mustInfer(t, number); got != types.Float64 {
		t.Errorf("number = %v, want float64", got)
	}
}

func TestDefaultSurvivesMerge(t *testing.T) {
	number := types.WithDefault(types.Int32)
	alias := types.New()
	if err := alias.MakeSame(number); err != nil {
		t.Fatal(err)
	}
	if got := mustInfer(t, alias); got != types.Int32 {
		t.Errorf("alias = %v, want int32", got)
	}
}

func TestNotInferred(t *testing.T) {
	_, err := types.New().Inferred()
	var ni *types.NotInferredError
	if !errors.As(err, &ni) {
		t.Errorf("expected NotInferredError, got %v", err)
	}
}

func TestChecksRunOnce(t *testing.T) {
	ty := types.New()
	calls := 0
	if err := ty.AddCheck(func(types.Inferred) error { calls++; return nil }); err != nil {
		t.Fatal(err)
	}
	other := types.New()
	if err := ty.MakeSame(other); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatal("check ran before resolution")
	}
	if err := other.Expect(types.Bool); err != nil {
		t.Fatal(err)
	}
	if err := ty.Expect(types.Bool); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("check ran %d times, want 1", calls)
	}

	// Registering on a resolved type runs immediately.
	if err := ty.AddCheck(func(types.Inferred) error { calls++; return nil }); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func option(payload types.Type) types.Inferred {
	return types.Variant{Cases: []types.VariantCase{
		{Name: "Some", Value: &payload},
		{Name: "None"},
	}}
}

func TestInferVariant(t *testing.T) {
	payload := types.New()
	tests := []struct {
		name    string
		variant string
		value   *types.Type
		wantErr bool
	}{
		{"payload", "Some", &payload, false},
		{"no payload", "None", nil, false},
		{"missing", "Other", nil, true},
		{"unexpected payload", "None", &payload, true},
		{"missing payload", "Some", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ty := types.InferVariant(tt.variant, tt.value)
			err := ty.Expect(option(types.Known(types.Int32)))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if got := payload.String(); got != "int32" {
		t.Errorf("payload = %s, want int32", got)
	}
}

func TestVariantUnification(t *testing.T) {
	a := types.Known(option(types.New()))
	b := types.Known(option(types.Known(types.String)))
	if err := a.MakeSame(b); err != nil {
		t.Fatal(err)
	}
	if got := a.String(); got != ".Some(string) | .None" {
		t.Errorf("a = %s", got)
	}
	c := types.Known(types.Variant{Cases: []types.VariantCase{{Name: "None"}}})
	if err := a.MakeSame(c); err == nil {
		t.Error("expected mismatch for different case sets")
	}
}

func TestTemplateIdentity(t *testing.T) {
	fnA, fnB := new(int), new(int)
	if err := types.Known(types.Template{Fn: fnA}).MakeSame(types.Known(types.Template{Fn: fnA})); err != nil {
		t.Errorf("same template: %v", err)
	}
	if err := types.Known(types.Template{Fn: fnA}).MakeSame(types.Known(types.Template{Fn: fnB})); err == nil {
		t.Error("different templates must not unify")
	}
}

func TestSubstitute(t *testing.T) {
	sym := scope.NewSymbol("T")
	generic := types.Known(types.Function{
		Arg:    types.Known(types.Binding{Symbol: sym}),
		Result: types.Known(types.Binding{Symbol: sym}),
	})
	concrete := types.Substitute(generic, func(s scope.Symbol) (types.Type, bool) {
		if s.ID == sym.ID {
			return types.Known(types.Int64), true
		}
		return types.Type{}, false
	})
	if got := concrete.String(); got != "int64 -> int64" {
		t.Errorf("substituted = %s", got)
	}
	if got := generic.String(); got != "T -> T" {
		t.Errorf("original changed: %s", got)
	}
}

func TestSubstitutePendingCells(t *testing.T) {
	sym := scope.NewSymbol("T")
	arg, result := types.New(), types.New()
	generic := types.Known(types.Function{Arg: arg, Result: result})
	instantiate := func(to types.Inferred) types.Type {
		return types.Substitute(generic, func(s scope.Symbol) (types.Type, bool) {
			if s.ID == sym.ID {
				return types.Known(to), true
			}
			return types.Type{}, false
		})
	}
	ints, bools := instantiate(types.Int32), instantiate(types.Bool)

	// The body is inferred after both instantiations were made.
	if err := arg.Expect(types.Binding{Symbol: sym}); err != nil {
		t.Fatal(err)
	}
	if err := result.MakeSame(arg); err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		got  types.Type
		want string
	}{
		{ints, "int32 -> int32"},
		{bools, "bool -> bool"},
		{generic, "T -> T"},
	} {
		if got := tt.got.String(); got != tt.want {
			t.Errorf("got %s, want %s", got, tt.want)
		}
	}
}

func TestSubstituteKeepsSharing(t *testing.T) {
	pending := types.New()
	generic := types.Known(types.Function{Arg: pending, Result: pending})
	copied := types.Substitute(generic, func(scope.Symbol) (types.Type, bool) { return types.Type{}, false })
	fn, err := copied.ExpectFunction()
	if err != nil {
		t.Fatal(err)
	}
	if err := fn.Arg.Expect(types.Int64); err != nil {
		t.Fatal(err)
	}
	if got := mustInfer(t, fn.Result); got != types.Int64 {
		t.Errorf("result = %s, want int64", got)
	}
	if _, ok := pending.Peek(); ok {
		t.Error("the original must stay unresolved")
	}
}

func TestSubstituteConflict(t *testing.T) {
	sym := scope.NewSymbol("T")
	arg := types.New()
	copied := types.Substitute(types.Known(types.Function{Arg: arg, Result: types.Known(types.Unit)}), func(s scope.Symbol) (types.Type, bool) {
		return types.Known(types.Int32), s.ID == sym.ID
	})
	fn, err := copied.ExpectFunction()
	if err != nil {
		t.Fatal(err)
	}
	if err := fn.Arg.Expect(types.String); err != nil {
		t.Fatal(err)
	}
	if err := arg.Expect(types.Binding{Symbol: sym}); err == nil {
		t.Error("expected int32 and string to conflict")
	}
}

func TestConcurrentMakeSame(t *testing.T) {
	const n = 64
	cells := make([]types.Type, n)
	for i := range cells {
		cells[i] = types.New()
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = cells[i].MakeSame(cells[(i+1)%n])
		}()
		go func() {
			defer wg.Done()
			_ = cells[(i+1)%n].MakeSame(cells[i])
		}()
	}
	wg.Wait()
	if err := cells[0].Expect(types.Bool); err != nil {
		t.Fatal(err)
	}
	for i, c := range cells {
		if got, ok := c.Peek(); !ok || got != types.Bool {
			t.Fatalf("cell %d = %v", i, got)
		}
	}
}
