package compiler_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/thomasrohde/morph/pkg/compiler"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/parser"
	"github.com/thomasrohde/morph/pkg/scope"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/std"
	"github.com/thomasrohde/morph/pkg/stdlib"
	"github.com/thomasrohde/morph/pkg/syntax"
	"github.com/thomasrohde/morph/pkg/types"
)

type harness struct {
	c       *compiler.Compiler
	interp  *evaluator.Interpreter
	env     *ir.Env
	grammar *syntax.Syntax
	out     bytes.Buffer

	mu     sync.Mutex
	events []evaluator.TraceEvent
}

func newHarness(t *testing.T, opts ...compiler.Option) *harness {
	t.Helper()
	h := &harness{}
	grammar, err := parser.ReadSyntax(std.Syntax())
	if err != nil {
		t.Fatalf("bootstrap grammar: %v", err)
	}
	reg := stdlib.NewRegistry()
	stdlib.RegisterDefaults(reg)
	stdlib.RegisterIO(reg, &h.out)
	h.interp = evaluator.New(evaluator.Options{
		AllowedCapabilities: map[string]bool{stdlib.CapIO: true},
		Natives:             reg.Natives(),
		Trace: func(ev evaluator.TraceEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
		},
	})
	h.c = compiler.New(h.interp, opts...)
	h.env = scope.NewRoot[ir.Value]()
	h.grammar = grammar
	if _, _, err := h.eval(std.Prelude()); err != nil {
		t.Fatalf("prelude: %+v", err)
	}
	if h.grammar, err = grammar.With(h.env.Syntax()...); err != nil {
		t.Fatalf("prelude syntax: %v", err)
	}
	h.env = h.env.Child(scope.NonRecursive)
	return h
}

func (h *harness) eval(src source.File) (ir.Value, types.Type, error) {
	node, err := parser.Parse(h.grammar, src)
	if err != nil {
		return nil, types.Type{}, err
	}
	ctx := context.Background()
	e, err := h.c.Compile(ctx, h.env, node)
	if err != nil {
		return nil, types.Type{}, err
	}
	v, err := h.interp.Eval(ctx, h.env, e)
	return v, e.Info().Type, err
}

func (h *harness) run(src string) (ir.Value, types.Type, error) {
	return h.eval(source.File{Name: "test.morph", Contents: src})
}

func (h *harness) sawEvent(event evaluator.TraceEventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ev := range h.events {
		if ev.Event == event {
			return true
		}
	}
	return false
}

func mustRun(t *testing.T, h *harness, src string) (ir.Value, types.Type) {
	t.Helper()
	v, ty, err := h.run(src)
	if err != nil {
		t.Fatalf("%s: %+v", src, err)
	}
	return v, ty
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		want     ir.Value
		wantType string
	}{
		{"arithmetic", `let x = 1 + 2 * 3; x`, ir.Int32(7), "int32"},
		{"ascription", `(1 :: int64) + 2`, ir.Int64(3), "int64"},
		{"float", `1.5 + 2.25`, ir.Float64(3.75), "float64"},
		{"comparison", `if 1 < 2 then "yes" else "no"`, ir.String("yes"), "string"},
		{"and macro", `true and false`, ir.Bool(false), "bool"},
		{"or macro", `false or true`, ir.Bool(true), "bool"},
		{"function", `let double = x => x * 2; double(21)`, ir.Int32(42), "int32"},
		{"typed function", `let f = fn (x :: int64) -> int64 => x + 1; f(1)`, ir.Int64(2), "int64"},
		{"tuple field", `let p = (x: 1, y: 2); p.y`, ir.Int32(2), "int32"},
		{"destructuring", `let (a, b) = (1, "two"); b`, ir.String("two"), "string"},
		{"shadowing", `let a = 1; let a = a + 1; a`, ir.Int32(2), "int32"},
		{"nested scope", `let a = 1; (let a = 10; a) + a`, ir.Int32(11), "int32"},
		{"const", `const n = 3 * 3; n`, ir.Int32(9), "int32"},
		{
			"mutual recursion",
			`let r = rec (
				let even = n => if n == 0 then true else odd(n - 1);
				let odd = n => if n == 0 then false else even(n - 1);
			);
			r.even(10)`,
			ir.Bool(true), "bool",
		},
		{
			"template",
			`let id = forall[T] (x :: T) => x; let n = id(5); id(true)`,
			ir.Bool(true), "bool",
		},
		{
			"template at two types",
			`let id = forall[T] fn (x :: T) -> T => x; let s = id("a"); id(5)`,
			ir.Int32(5), "int32",
		},
		{
			"match",
			`const Option = newtype (.Some(int32) | .None);
			let v = .Some(5) :: Option;
			match v { .Some(x) => x + 1 | .None => 0 }`,
			ir.Int32(6), "int32",
		},
		{
			"conditional binding",
			`const Option = newtype (.Some(int32) | .None);
			let v = .None :: Option;
			if v is .Some(x) then x else -1`,
			ir.Int32(-1), "int32",
		},
		{
			"user macro",
			`syntax rsub <- 30 = a "from" b;
			impl syntax rsub = macro ((a: a, b: b) => quote ($b - $a));
			1 from 10`,
			ir.Int32(9), "int32",
		},
		{
			"function syntax",
			`syntax avg <- 20 = a "avg" b;
			impl syntax avg = (a: a, b: b) => (a + b) / 2;
			4 avg 8`,
			ir.Int32(6), "int32",
		},
		{
			"cast",
			`impl cast (1 :: int32) to string = "one";
			(1 :: int32) as string`,
			ir.String("one"), "string",
		},
		{"unit", `let x = 1;`, ir.Unit{}, "unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			got, ty := mustRun(t, h, tt.src)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if _, err := ty.Inferred(); err != nil {
				t.Fatalf("result type: %v", err)
			}
			if ty.String() != tt.wantType {
				t.Errorf("type = %s, want %s", ty, tt.wantType)
			}
		})
	}
}

func TestDefaultNumber(t *testing.T) {
	h := newHarness(t, compiler.WithDefaultNumber(types.Int64))
	got, _ := mustRun(t, h, `1 + 2 * 3`)
	if got != ir.Int64(7) {
		t.Errorf("got %s, want int64 7", ir.Describe(got))
	}
}

func TestDbg(t *testing.T) {
	h := newHarness(t)
	mustRun(t, h, `let x = 1 + 2 * 3; dbg(x)`)
	if got := h.out.String(); got != "7 :: int32\n" {
		t.Errorf("output = %q", got)
	}
}

func TestDefinitionsPersist(t *testing.T) {
	h := newHarness(t)
	mustRun(t, h, `let x = 20;`)
	got, _ := mustRun(t, h, `x + 1`)
	if got != ir.Int32(21) {
		t.Errorf("got %s", got)
	}
}

func TestCompileErrors(t *testing.T) {
	t.Run("pending macro", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`syntax twice -> 5 = "twice" x; twice 1`)
		var pending *compiler.PendingMacroError
		if !errors.As(err, &pending) {
			t.Fatalf("expected PendingMacroError, got %v", err)
		}
		if pending.Name != "twice" {
			t.Errorf("name = %q", pending.Name)
		}
		if !strings.Contains(err.Error(), "can not be used until it is defined") {
			t.Errorf("message = %q", err)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`let value = 1; valeu`)
		var nf *scope.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`let f = (x :: string) => x; f(true)`)
		var ue *types.UnificationError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnificationError, got %v", err)
		}
		if !strings.Contains(err.Error(), "while compiling") {
			t.Errorf("missing context in %q", err)
		}
	})

	t.Run("result mismatch in body", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`let f = fn (x :: string) -> int32 => x; 1`)
		var ue *types.UnificationError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnificationError, got %v", err)
		}
		if !strings.Contains(err.Error(), "while compiling fn") {
			t.Errorf("missing context in %q", err)
		}
	})

	t.Run("unknown builtin", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`syntax @"builtin macro nope" -> 5 = "nope" x; nope 1`)
		var ub *compiler.UnknownBuiltinError
		if !errors.As(err, &ub) {
			t.Fatalf("expected UnknownBuiltinError, got %v", err)
		}
	})

	t.Run("implemented twice", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`syntax square -> 5 = "sq" x;
			impl syntax square = (x: x) => x * x;
			impl syntax square = (x: x) => x`)
		if err == nil || !strings.Contains(err.Error(), "already implemented") {
			t.Fatalf("expected an error, got %v", err)
		}
	})

	t.Run("missing cast", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.run(`impl cast (1 :: int32) to string = "one"; (2 :: int32) as string`)
		var re *evaluator.RuntimeError
		if !errors.As(err, &re) || re.Code != diagnostics.ECast {
			t.Fatalf("expected an E_CAST error, got %v", err)
		}
	})

	for _, tt := range []struct{ name, src string }{
		{"impl cast to a number", `impl cast 1 to 7 = "x"`},
		{"cast to a number", `1 as 7`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, _, err := h.run(tt.src)
			if err == nil || !strings.Contains(err.Error(), "cast target must be a type or a template") {
				t.Fatalf("expected a cast target error, got %v", err)
			}
		})
	}

	t.Run("unquote outside quote", func(t *testing.T) {
		h := newHarness(t)
		if _, _, err := h.run(`let a = quote (1); $a`); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestTraceEvents(t *testing.T) {
	h := newHarness(t)
	mustRun(t, h, `syntax square -> 5 = "sq" x; impl syntax square = (x: x) => x * x; sq 4`)
	for _, ev := range []evaluator.TraceEventType{
		compiler.TraceSyntaxRegistered,
		compiler.TraceSyntaxImplemented,
		compiler.TraceTaskSpawn,
		compiler.TraceTaskDone,
	} {
		if !h.sawEvent(ev) {
			t.Errorf("no %s event", ev)
		}
	}
}

func TestBuiltinNames(t *testing.T) {
	names := compiler.BuiltinNames()
	for _, want := range []string{"let", "then", "quote", "struct_def", "template_def"} {
		if err := compiler.LookupBuiltin(want); err != nil {
			t.Errorf("LookupBuiltin(%q): %v", want, err)
		}
	}
	if len(names) < 30 {
		t.Errorf("only %d builtins", len(names))
	}
}
