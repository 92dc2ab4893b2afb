// Package help holds the text printed by `morph help`.
package help

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/compiler"
	"github.com/thomasrohde/morph/pkg/stdlib"
)

// Version is the language version shown in the quick reference.
const Version = "v0.1"

// QUICKREF is printed by `morph help` without a topic.
var QUICKREF = `morph ` + Version + ` - a language whose grammar grows while it is read

Commands:
  morph run <file>       evaluate a program, print its value
  morph check <file>     parse, validate and compile without running
  morph parse <file>     print the syntax tree
  morph repl             interactive session
  morph policy           show the capability policy in effect
  morph help [topic]     this text, or one topic

Topics: syntax, types, macros, builtins, natives, caps, diagnostics, examples

  let x = 1 + 2 * 3;
  dbg(x)                 # prints 7 :: int32
`

// TopicList is the order topics are listed in.
var TopicList = []string{"syntax", "types", "macros", "builtins", "natives", "caps", "diagnostics", "examples"}

// Topics maps topic names to their text.
var Topics = map[string]string{
	"syntax": `Syntax declarations

  syntax <name> <assoc> <priority> = <parts>;

<assoc> is <- (left) or -> (right). Smaller priorities bind tighter.
Parts are quoted keywords and binding names; _ is an unnamed binding.

  syntax pow -> 4 = a "^" b;

A declaration extends the grammar until the end of the enclosing group.
Declarations at the top level of a REPL line stay for later lines.
Two declarations conflict when they share a keyword at different binding
powers, or use one priority with both associativities.
`,
	"types": `Types

Primitive types: unit, bool, int32, int64, float64, string, type, ast.
Types are inferred. Ascribe with ::

  let n = 1 :: int64;
  let f = fn (x :: int32) -> int32 => x + 1;

Tuples: (a: 1, b: "two"). Variants: newtype (.Some(int32) | .None).
Templates take types as arguments: forall[T] (x :: T) => x.
Number literals default to int32 (MORPH_DEFAULT_NUMBER overrides).
`,
	"macros": `Macros

A syntax is implemented with impl syntax. A macro receives its operands
unevaluated and returns code built with quote; $ splices a value in.

  syntax unless_then -> 65 = "unless" cond "then" body;
  impl syntax unless_then = macro ((cond: c, body: b) =>
    quote (if not $c then $b));

Any other implementation is called with the evaluated operands:

  syntax avg <- 20 = a "avg" b;
  impl syntax avg = (a: a, b: b) => (a + b) / 2;
`,
	"builtins": `Builtin macros

Definitions named "builtin macro <name>" are handled by the compiler. The
bootstrap grammar binds every one of them to surface syntax.
`,
	"natives": `Natives

native "<name>" reaches a host function or constant. The prelude binds
the common ones by name (print, dbg, to_string, ...).
`,
	"caps": `Capabilities

Natives with side effects need a capability:
  io   print, dbg          allowed by default
  fs   read_file           denied by default

A .morph-policy.json in the working directory, or else in the home
directory, changes this:

  {"allow": ["fs"], "deny": ["io"]}

deny wins over allow.
`,
	"diagnostics": `Diagnostics

Errors are printed as JSON when stderr is not a terminal, and as text
otherwise (--pretty or MORPH_PRETTY=1 forces text).

Exit codes: 0 ok, 1 usage or I/O, 2 lex/parse/grammar,
3 capability denied, 4 compile, type or runtime error.

MORPH_MAX_CALLS and MORPH_TIME_MS cap a run; exceeding either
reports E_BUDGET.
`,
	"examples": `Examples

  let r = rec (
    let even = n => if n == 0 then true else odd(n - 1);
    let odd = n => if n == 0 then false else even(n - 1);
  );
  r.even(10)

  const Option = newtype (.Some(int32) | .None);
  match (.Some(1) :: Option) { .Some(x) => x | .None => 0 }
`,
}

func init() {
	Topics["builtins"] += "\n" + columns(compiler.BuiltinNames())
}

// MatchTopic finds the topic named query, or the only topic starting with
// it.
func MatchTopic(query string) (string, string, error) {
	if content, ok := Topics[query]; ok {
		return query, content, nil
	}
	var matches []string
	for _, name := range TopicList {
		if query != "" && strings.HasPrefix(name, query) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", errors.Errorf("unknown topic %q", query)
	case 1:
		return matches[0], Topics[matches[0]], nil
	}
	return "", "", errors.Errorf("ambiguous topic %q: %s", query, strings.Join(matches, ", "))
}

// NativesIndex lists every native of the default registry.
func NativesIndex() string {
	r := stdlib.NewRegistry()
	stdlib.RegisterDefaults(r)
	stdlib.RegisterIO(r, nil)
	var b strings.Builder
	names := r.Names()
	for _, name := range names {
		fn := r.Get(name)
		switch {
		case fn.CapabilityID != "":
			fmt.Fprintf(&b, "  %-20s needs %s\n", name, fn.CapabilityID)
		case fn.Const != nil:
			fmt.Fprintf(&b, "  %-20s %s\n", name, fn.Const)
		default:
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}
	fmt.Fprintf(&b, "Total: %d natives\n", len(names))
	return b.String()
}

func columns(names []string) string {
	names = append([]string(nil), names...)
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		fmt.Fprintf(&b, "  %-22s", name)
		if i%3 == 2 {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), " ") + "\n"
}
