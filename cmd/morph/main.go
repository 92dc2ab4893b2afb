// Command morph is the morph CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/thomasrohde/morph/pkg/capabilities"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/formatter"
	"github.com/thomasrohde/morph/pkg/help"
	"github.com/thomasrohde/morph/pkg/runtime"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/stdlib"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: morph <command> [options]")
		fmt.Fprintln(os.Stderr, "commands: run, check, parse, repl, help, policy")
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "check":
		os.Exit(cmdCheck(os.Args[2:]))
	case "parse":
		os.Exit(cmdParse(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "help", "--help", "-h":
		os.Exit(cmdHelp(os.Args[2:]))
	case "policy":
		os.Exit(cmdPolicy(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}
}

// flags are the options shared by the commands that evaluate code.
type flags struct {
	file           string
	pretty         bool
	json           bool
	trace          bool
	unsafeAllowAll bool
	short          bool
}

func parseFlags(args []string) flags {
	var f flags
	for _, arg := range args {
		switch arg {
		case "--pretty":
			f.pretty = true
		case "--json":
			f.json = true
		case "--trace":
			f.trace = true
		case "--unsafe-allow-all":
			f.unsafeAllowAll = true
		case "--short":
			f.short = true
		default:
			if arg == "-" || !strings.HasPrefix(arg, "-") {
				f.file = arg
			}
		}
	}
	return f
}

// session holds what every command needs to build a runtime and report
// problems.
type session struct {
	flags  flags
	cfg    runtime.Config
	pretty bool
}

func newSession(args []string) (*session, int) {
	s := &session{flags: parseFlags(args)}
	cfg, err := runtime.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, 1
	}
	s.cfg = cfg
	s.pretty = !s.flags.json && (s.flags.pretty || cfg.Pretty || isTerminal(os.Stderr))
	return s, 0
}

func (s *session) runtime() (*runtime.Runtime, int) {
	opts := s.cfg.Options()
	if s.flags.unsafeAllowAll {
		opts = append(opts, runtime.WithPolicy(capabilities.AllowAll(stdlib.CapIO, stdlib.CapFS)))
	} else {
		cwd, _ := os.Getwd()
		policy, err := capabilities.Load(cwd)
		if err != nil {
			s.report(err)
			return nil, 1
		}
		opts = append(opts, runtime.WithPolicy(policy))
	}
	if s.flags.trace || s.cfg.Trace {
		opts = append(opts, runtime.WithTrace(traceLogger(os.Stderr, s.flags.json)))
	}
	return runtime.New(opts...), 0
}

// traceLogger turns trace events into slog records.
func traceLogger(w io.Writer, asJSON bool) func(evaluator.TraceEvent) {
	var handler slog.Handler
	if asJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	return func(ev evaluator.TraceEvent) {
		attrs := make([]any, 0, len(ev.Data)+2)
		if ev.RunID != "" {
			attrs = append(attrs, slog.String("run", ev.RunID))
		}
		if ev.Span != nil {
			attrs = append(attrs, slog.String("at", ev.Span.String()))
		}
		for k, v := range ev.Data {
			attrs = append(attrs, slog.String(k, v))
		}
		logger.Debug(string(ev.Event), attrs...)
	}
}

func (s *session) report(err error) int {
	return s.reportTo(os.Stderr, err)
}

func (s *session) reportTo(w io.Writer, err error) int {
	diags := runtime.Diagnostics(err)
	fmt.Fprintln(w, diagnostics.FormatDiagnostics(diags, s.pretty))
	return exitCodeFor(diags)
}

func (s *session) read(usage string) (source.File, int) {
	if s.flags.file == "" {
		fmt.Fprintln(os.Stderr, usage)
		return source.File{}, 1
	}
	src, err := readSource(s.flags.file)
	if err != nil {
		return source.File{}, s.report(err)
	}
	return src, 0
}

// command is the part of run, check and parse that follows reading the
// source and building the runtime.
type command func(s *session, rt *runtime.Runtime, src source.File, stdout, stderr io.Writer) int

var commands = map[string]command{
	"run":   runSource,
	"check": checkSource,
	"parse": parseSource,
}

func cmdRun(args []string) int {
	return runCommand("run", args, "usage: morph run <file> [--pretty] [--json] [--trace] [--unsafe-allow-all]")
}

func cmdCheck(args []string) int {
	return runCommand("check", args, "usage: morph check <file> [--pretty] [--json]")
}

func cmdParse(args []string) int {
	return runCommand("parse", args, "usage: morph parse <file> [--short]")
}

func runCommand(name string, args []string, usage string) int {
	s, code := newSession(args)
	if code != 0 {
		return code
	}
	src, code := s.read(usage)
	if code != 0 {
		return code
	}
	rt, code := s.runtime()
	if code != 0 {
		return code
	}
	return commands[name](s, rt, src, os.Stdout, os.Stderr)
}

func runSource(s *session, rt *runtime.Runtime, src source.File, stdout, stderr io.Writer) int {
	result, err := rt.Run(context.Background(), src)
	if err != nil {
		return s.reportTo(stderr, err)
	}
	if result.IsUnit() {
		return 0
	}
	if s.flags.json {
		b, err := evaluator.ValueToJSON(result.Value)
		if err != nil {
			return s.reportTo(stderr, err)
		}
		fmt.Fprintln(stdout, string(b))
		return 0
	}
	fmt.Fprintln(stdout, result)
	return 0
}

func checkSource(s *session, rt *runtime.Runtime, src source.File, stdout, stderr io.Writer) int {
	if diags := rt.Check(context.Background(), src); len(diags) > 0 {
		fmt.Fprintln(stderr, diagnostics.FormatDiagnostics(diags, s.pretty))
		return exitCodeFor(diags)
	}
	if s.pretty {
		fmt.Fprintln(stdout, "No errors found.")
	} else {
		fmt.Fprintln(stdout, "[]")
	}
	return 0
}

func parseSource(s *session, rt *runtime.Runtime, src source.File, stdout, stderr io.Writer) int {
	node, err := rt.Parse(context.Background(), src)
	if err != nil {
		return s.reportTo(stderr, err)
	}
	if s.flags.short {
		fmt.Fprintln(stdout, formatter.Inline(node))
	} else {
		fmt.Fprint(stdout, formatter.Indented(node))
	}
	return 0
}

func cmdHelp(args []string) int {
	showIndex := false
	topic := ""
	for _, arg := range args {
		if arg == "--index" {
			showIndex = true
		} else if !strings.HasPrefix(arg, "-") {
			topic = arg
		}
	}

	if showIndex {
		fmt.Print(help.NativesIndex())
		return 0
	}
	if topic == "" {
		fmt.Print(help.QUICKREF)
		return 0
	}

	_, content, err := help.MatchTopic(topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nAvailable topics: %s\n", err, strings.Join(help.TopicList, ", "))
		return 1
	}
	fmt.Print(content)
	return 0
}

func cmdPolicy(args []string) int {
	s, code := newSession(args)
	if code != 0 {
		return code
	}
	cwd, _ := os.Getwd()
	policy, err := capabilities.Load(cwd)
	if err != nil {
		return s.report(err)
	}
	out := struct {
		Source  string   `json:"source,omitempty"`
		Allowed []string `json:"allowed"`
	}{Source: policy.Source, Allowed: policy.Names()}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return 0
}

func readSource(file string) (source.File, error) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return source.File{}, ioError("cannot read stdin: %s", err)
		}
		return source.File{Name: "<stdin>", Contents: string(data)}, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return source.File{}, ioError("cannot read file: %s", file)
	}
	return source.File{Name: file, Contents: string(data)}, nil
}

func ioError(format string, args ...any) error {
	d := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf(format, args...), nil, "")
	return &runtime.DiagnosticError{Diagnostics: []diagnostics.Diagnostic{d}}
}

// exitCodeFor picks the exit code for the first diagnostic.
func exitCodeFor(diags []diagnostics.Diagnostic) int {
	if len(diags) == 0 {
		return 0
	}
	switch diags[0].Code {
	case diagnostics.EIO:
		return 1
	case diagnostics.ELex, diagnostics.EParse, diagnostics.EGrammarConflict:
		return 2
	case diagnostics.ECapDenied:
		return 3
	default:
		return 4
	}
}
