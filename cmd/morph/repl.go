package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/formatter"
	"github.com/thomasrohde/morph/pkg/lexer"
	"github.com/thomasrohde/morph/pkg/parser"
	"github.com/thomasrohde/morph/pkg/runtime"
	"github.com/thomasrohde/morph/pkg/source"
)

const (
	prompt     = "morph> "
	contPrompt = "  ...> "
)

func cmdRepl(args []string) int {
	s, code := newSession(args)
	if code != 0 {
		return code
	}
	// Diagnostics in the REPL are read by a person.
	s.pretty = !s.flags.json
	rt, code := s.runtime()
	if code != 0 {
		return code
	}
	ctx := context.Background()
	sess, err := rt.NewSession(ctx)
	if err != nil {
		return s.report(err)
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(s.cfg.History); err == nil {
		_, _ = ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(s.cfg.History); err == nil {
			_, _ = ln.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("morph REPL. :help for commands, :quit to exit.")
	line := 0
	for {
		src, ok := readByParseProbe(ln, sess, prompt, contPrompt)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if quit := replCommand(sess, trimmed); quit {
				return 0
			}
			continue
		}

		line++
		result, err := sess.EvalSource(ctx, source.File{Name: fmt.Sprintf("<repl:%d>", line), Contents: src})
		if err != nil {
			fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics(runtime.Diagnostics(err), s.pretty))
			continue
		}
		if !result.IsUnit() {
			fmt.Println(result)
		}
	}
}

// replCommand runs a ":" command and reports whether the REPL should stop.
func replCommand(sess *runtime.Session, cmd string) bool {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":quit", ":q":
		return true
	case ":help", ":h":
		fmt.Println(":quit          leave the REPL")
		fmt.Println(":parse <expr>  show the syntax tree of expr")
		fmt.Println(":syntax        list the syntax definitions in scope")
		fmt.Println(":usage         calls made and time spent so far")
		fmt.Println(":help <topic>  see `morph help`")
		if arg != "" {
			cmdHelp([]string{arg})
		}
	case ":parse":
		node, err := sess.Parse(source.File{Name: "<repl>", Contents: arg})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		fmt.Print(formatter.Indented(node))
	case ":syntax":
		for _, def := range sess.Syntax().Definitions() {
			fmt.Println(def)
		}
	case ":usage":
		u := sess.Usage()
		fmt.Printf("%d calls, %dms\n", u.Calls, u.ElapsedMs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", name)
	}
	return false
}

// readByParseProbe reads lines until the buffer parses or fails for a
// reason other than running out of input. It returns false on EOF.
func readByParseProbe(ln *liner.State, sess *runtime.Session, first, cont string) (string, bool) {
	var buf strings.Builder
	p := first
	for {
		text, err := ln.Prompt(p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", false
			}
			// Ctrl-C drops the pending input.
			return "", true
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
		src := buf.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := sess.Parse(source.File{Name: "<repl>", Contents: src}); err != nil && looksIncomplete(err) {
			p = cont
			continue
		}
		return src, true
	}
}

func looksIncomplete(err error) bool {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return pe.Incomplete
	}
	var le *lexer.LexError
	if errors.As(err, &le) {
		return strings.Contains(le.Diag.Message, "unterminated")
	}
	return false
}
