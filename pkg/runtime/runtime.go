// Package runtime ties the morph components together: it loads the
// bootstrap grammar and the prelude, and parses, compiles and evaluates
// programs in a persistent session.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/capabilities"
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
	"github.com/thomasrohde/morph/pkg/validator"
)

// Result holds the outcome of evaluating a program.
type Result struct {
	Value ir.Value
	Type  types.Type
}

// String renders the result as "<value> :: <type>", or just the value when
// its type could not be inferred.
func (r *Result) String() string {
	if _, err := r.Type.Inferred(); err != nil {
		return r.Value.String()
	}
	return fmt.Sprintf("%s :: %s", r.Value, r.Type)
}

// IsUnit reports whether the program produced no value.
func (r *Result) IsUnit() bool {
	_, ok := r.Value.(ir.Unit)
	return ok
}

// Runtime holds the configuration sessions are created with.
type Runtime struct {
	stdout        io.Writer
	stdlib        *stdlib.Registry
	policy        *capabilities.Policy
	trace         func(event evaluator.TraceEvent)
	defaultNumber types.Primitive
	searchPath    []string
	runID         string
	budget        evaluator.Budget
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStdout sets where print and dbg write.
func WithStdout(w io.Writer) Option {
	return func(rt *Runtime) {
		rt.stdout = w
	}
}

// WithStdlib replaces the natives registry.
func WithStdlib(r *stdlib.Registry) Option {
	return func(rt *Runtime) {
		rt.stdlib = r
	}
}

// WithPolicy sets the capability policy.
func WithPolicy(p *capabilities.Policy) Option {
	return func(rt *Runtime) {
		rt.policy = p
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// WithDefaultNumberType sets the type of unconstrained integer literals.
func WithDefaultNumberType(p types.Primitive) Option {
	return func(rt *Runtime) {
		rt.defaultNumber = p
	}
}

// WithSearchPath adds directories searched for imports that do not exist
// relative to the importing file.
func WithSearchPath(dirs ...string) Option {
	return func(rt *Runtime) {
		rt.searchPath = append(rt.searchPath, dirs...)
	}
}

// WithBudget limits the calls and time a session's evaluations may use.
func WithBudget(b evaluator.Budget) Option {
	return func(rt *Runtime) {
		rt.budget = b
	}
}

// WithRunID sets the run ID for trace events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// New creates a Runtime. By default output goes to os.Stdout, every
// stdlib native is registered and the default capability policy applies.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		stdout:        os.Stdout,
		policy:        capabilities.Default(),
		defaultNumber: types.Int32,
		runID:         "cli",
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.policy == nil {
		rt.policy = capabilities.DenyAll()
	}
	if rt.stdlib == nil {
		rt.stdlib = stdlib.NewRegistry()
		stdlib.RegisterDefaults(rt.stdlib)
		stdlib.RegisterIO(rt.stdlib, rt.stdout)
	}
	return rt
}

// Run evaluates src in a new session.
func (rt *Runtime) Run(ctx context.Context, src source.File) (*Result, error) {
	s, err := rt.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.EvalSource(ctx, src)
}

// Check parses, validates and compiles src in a new session. Only
// compile-time evaluation happens.
func (rt *Runtime) Check(ctx context.Context, src source.File) []diagnostics.Diagnostic {
	s, err := rt.NewSession(ctx)
	if err != nil {
		return toDiagnostics(err)
	}
	return s.Check(ctx, src)
}

// Parse parses src with the grammar a new session starts with.
func (rt *Runtime) Parse(ctx context.Context, src source.File) (ast.Ast, error) {
	s, err := rt.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.Parse(src)
}

// Session is a top-level environment that persists across evaluations.
// Definitions and syntax declared by one EvalSource call are visible to the
// next.
type Session struct {
	rt       *Runtime
	interp   *evaluator.Interpreter
	compiler *compiler.Compiler

	// base holds the prelude; imported files are evaluated in children of
	// it, with baseSyntax.
	base       *ir.Env
	baseSyntax *syntax.Syntax

	mu      sync.Mutex
	env     *ir.Env
	grammar *syntax.Syntax

	importMu sync.Mutex
	imports  map[string]*imported
}

type imported struct {
	done   chan struct{}
	result *Result
	err    error
}

// NewSession loads the bootstrap grammar and evaluates the prelude.
func (rt *Runtime) NewSession(ctx context.Context) (*Session, error) {
	grammar, err := parser.ReadSyntax(std.Syntax())
	if err != nil {
		return nil, errors.Wrap(err, "loading bootstrap grammar")
	}
	s := &Session{rt: rt, imports: map[string]*imported{}}
	s.interp = evaluator.New(evaluator.Options{
		AllowedCapabilities: rt.policy.Allowed,
		Natives:             rt.stdlib.Natives(),
		Trace:               rt.trace,
		Budget:              rt.budget,
		RunID:               rt.runID,
	})
	s.compiler = compiler.New(s.interp,
		compiler.WithDefaultNumber(rt.defaultNumber),
		compiler.WithImporter(s),
	)

	var opts []scope.Option
	if rt.trace != nil {
		opts = append(opts, scope.WithTrace(s.scopeEvent))
	}
	s.base = scope.NewRoot[ir.Value](opts...)
	if _, s.baseSyntax, err = s.evalIn(ctx, s.base, grammar, std.Prelude()); err != nil {
		return nil, errors.Wrap(err, "loading prelude")
	}
	s.env = s.base.Child(scope.NonRecursive)
	s.grammar = s.baseSyntax
	return s, nil
}

func (s *Session) scopeEvent(ev scope.Event) {
	data := map[string]string{
		"scope": strconv.FormatUint(ev.ScopeID, 10),
		"kind":  ev.Kind.String(),
	}
	if ev.Lookup != "" {
		data["lookup"] = ev.Lookup
	}
	s.interp.Emit(evaluator.TraceEventType(ev.Event), nil, data)
}

// Syntax returns the grammar the next EvalSource call parses with.
func (s *Session) Syntax() *syntax.Syntax {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grammar
}

// Usage reports the calls and time the session's evaluations used so far.
func (s *Session) Usage() evaluator.BudgetTracker {
	return s.interp.Usage()
}

// Parse parses src with the session grammar.
func (s *Session) Parse(src source.File) (ast.Ast, error) {
	return parser.Parse(s.Syntax(), src)
}

// EvalSource parses, compiles and evaluates src in the session's top-level
// scope. Syntax declared at the top level of src extends the grammar of
// later calls.
func (s *Session) EvalSource(ctx context.Context, src source.File) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, grammar, err := s.evalIn(ctx, s.env, s.grammar, src)
	if err != nil {
		return nil, err
	}
	s.grammar = grammar
	return result, nil
}

// Check reports what is wrong with src without evaluating it. Names it
// declares are discarded.
func (s *Session) Check(ctx context.Context, src source.File) []diagnostics.Diagnostic {
	node, err := s.Parse(src)
	if err != nil {
		return toDiagnostics(err)
	}
	if diags := validator.Validate(node); len(diags) > 0 {
		return diags
	}
	s.mu.Lock()
	env := s.env.Child(scope.NonRecursive)
	s.mu.Unlock()
	if _, err := s.compiler.Compile(ctx, env, node); err != nil {
		return toDiagnostics(err)
	}
	return nil
}

func (s *Session) evalIn(ctx context.Context, env *ir.Env, grammar *syntax.Syntax, src source.File) (*Result, *syntax.Syntax, error) {
	node, err := parser.Parse(grammar, src)
	if err != nil {
		return nil, nil, err
	}
	if diags := validator.Validate(node); len(diags) > 0 {
		return nil, nil, &DiagnosticError{Diagnostics: diags}
	}
	e, err := s.compiler.Compile(ctx, env, node)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.interp.Eval(ctx, env, e)
	if err != nil {
		return nil, nil, err
	}
	grammar, err = extend(grammar, env.Syntax())
	if err != nil {
		return nil, nil, err
	}
	return &Result{Value: v, Type: e.Info().Type}, grammar, nil
}

// extend adds the definitions g does not have yet.
func extend(g *syntax.Syntax, defs []*ast.SyntaxDefinition) (*syntax.Syntax, error) {
	known := set.From(g.Definitions())
	var fresh []*ast.SyntaxDefinition
	for _, def := range defs {
		if known.Insert(def) {
			fresh = append(fresh, def)
		}
	}
	if len(fresh) == 0 {
		return g, nil
	}
	return g.With(fresh...)
}

type importStackKey struct{}

// Import evaluates the file at path in a fresh scope below the prelude and
// returns its value. Each file is evaluated once per session.
func (s *Session) Import(ctx context.Context, path string) (ir.Value, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	stack, _ := ctx.Value(importStackKey{}).([]string)
	if slices.Contains(stack, abs) {
		return nil, &ImportError{Path: path, Reason: "import cycle: " + strings.Join(append(stack, abs), " -> ")}
	}

	s.importMu.Lock()
	entry, ok := s.imports[abs]
	if !ok {
		entry = &imported{done: make(chan struct{})}
		s.imports[abs] = entry
	}
	s.importMu.Unlock()

	if ok {
		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		ctx = context.WithValue(ctx, importStackKey{}, append(slices.Clip(stack), abs))
		entry.result, entry.err = s.load(ctx, abs)
		close(entry.done)
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.result.Value, nil
}

func (s *Session) load(ctx context.Context, path string) (*Result, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	env := s.base.Child(scope.NonRecursive)
	result, _, err := s.evalIn(ctx, env, s.baseSyntax, source.File{Name: path, Contents: string(contents)})
	return result, err
}

func (s *Session) resolve(path string) (string, error) {
	candidates := []string{path}
	for _, dir := range s.rt.searchPath {
		candidates = append(candidates, filepath.Join(dir, filepath.Base(path)))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return filepath.Abs(c)
		}
	}
	return "", &ImportError{Path: path, Reason: "no such file"}
}

// ImportError reports an import that could not be resolved.
type ImportError struct {
	Path   string
	Reason string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *ImportError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EImport, e.Error(), nil, "")
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}

// Diagnostics converts any error returned by this package into diagnostics.
func Diagnostics(err error) []diagnostics.Diagnostic {
	return toDiagnostics(err)
}

func toDiagnostics(err error) []diagnostics.Diagnostic {
	if err == nil {
		return nil
	}
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de.Diagnostics
	}
	return []diagnostics.Diagnostic{diagnostics.FromError(err)}
}
