// Package parser implements the extensible Pratt parser.
//
// The parser walks the grammar automaton of a syntax.Syntax. When a token
// matches no edge it becomes an operand, parsed recursively with the current
// node's binding power as the threshold. An inline `syntax` declaration
// extends a clone of the table for the rest of the enclosing parse.
package parser

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/lexer"
	"github.com/thomasrohde/morph/pkg/source"
	"github.com/thomasrohde/morph/pkg/syntax"
)

// ParseError is a recoverable parse failure at a position of a file.
type ParseError struct {
	File     string
	Position source.Position
	Message  string
	// Incomplete is set when the input ended before the failing rule did.
	Incomplete bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Position, e.Message)
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *ParseError) Diagnostic() diagnostics.Diagnostic {
	span := source.Span{File: e.File, Start: e.Position, End: e.Position}
	return diagnostics.MakeDiag(diagnostics.EParse, e.Message, &span, "")
}

type parser struct {
	tokens []lexer.Token
	pos    int
	file   string
	end    source.Position
}

func newParser(src source.File) (*parser, error) {
	all, err := lexer.Tokenize(src.Contents, src.Name)
	if err != nil {
		return nil, err
	}
	p := &parser{file: src.Name, end: source.Start}
	for _, tok := range all {
		switch tok.Kind {
		case lexer.Comment:
			continue
		case lexer.EOF:
			p.end = tok.Span.Start
			continue
		}
		p.tokens = append(p.tokens, tok)
	}
	return p, nil
}

// Parse parses a whole file with the given grammar. An input with no tokens
// yields a nil Ast.
func Parse(s *syntax.Syntax, src source.File) (ast.Ast, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	result, err := p.readUntil(s, nil, nil)
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, p.errorf("unexpected %q", p.front().Raw)
	}
	return result, nil
}

// ReadSyntax parses a file made only of syntax declarations separated by
// optional semicolons, and returns the resulting grammar.
func ReadSyntax(src source.File) (*syntax.Syntax, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	s := syntax.Empty()
	for {
		for !p.done() && p.front().Kind == lexer.Punctuation && p.front().Raw == ";" {
			p.pos++
		}
		if p.done() {
			return s, nil
		}
		def, err := p.readSyntaxDef()
		if err != nil {
			return nil, err
		}
		if err := s.Insert(def); err != nil {
			return nil, err
		}
	}
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) front() lexer.Token { return p.tokens[p.pos] }

func (p *parser) next() (lexer.Token, error) {
	if p.done() {
		return lexer.Token{}, p.errorf("unexpected end of input")
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, nil
}

// errorf builds a ParseError positioned at the next unconsumed token.
func (p *parser) errorf(format string, args ...any) *ParseError {
	e := &ParseError{File: p.file, Message: fmt.Sprintf(format, args...)}
	if p.done() {
		e.Position = p.end
		e.Incomplete = true
	} else {
		e.Position = p.front().Span.Start
	}
	return e
}

// readSyntaxDef parses `syntax <name> <-|-> <priority> = <parts>`.
func (p *parser) readSyntaxDef() (*ast.SyntaxDefinition, error) {
	first, err := p.next()
	if err != nil {
		return nil, err
	}
	if first.Raw != "syntax" {
		p.pos--
		return nil, p.errorf("expected a syntax definition")
	}
	if p.done() || p.front().Kind != lexer.Ident {
		return nil, p.errorf("name for the syntax must be an identifier")
	}
	name := p.front().Value
	p.pos++

	def := &ast.SyntaxDefinition{Name: name}
	switch {
	case p.done():
		return nil, p.errorf("expected associativity (<- or ->)")
	case p.front().Raw == "<-":
		def.Associativity = ast.Left
	case p.front().Raw == "->":
		def.Associativity = ast.Right
	default:
		return nil, p.errorf("expected associativity (<- or ->)")
	}
	p.pos++

	if p.done() || (p.front().Kind != lexer.Number && p.front().Kind != lexer.String) {
		return nil, p.errorf("syntax priority must be a number")
	}
	priority, err := strconv.ParseFloat(p.front().Value, 64)
	if err != nil {
		return nil, p.errorf("failed to parse priority %q", p.front().Value)
	}
	def.Priority = ast.Priority(priority)
	p.pos++

	if p.done() || p.front().Raw != "=" {
		return nil, p.errorf("expected a =")
	}
	p.pos++

	end := first.Span
parts:
	for !p.done() {
		tok := p.front()
		switch {
		case tok.Kind == lexer.Ident && tok.Value == "_" && !tok.IsRaw:
			def.Parts = append(def.Parts, ast.Part{Kind: ast.UnnamedBinding})
		case tok.Kind == lexer.Ident:
			def.Parts = append(def.Parts, ast.Part{Kind: ast.NamedBinding, Text: tok.Value})
		case tok.Kind == lexer.String:
			def.Parts = append(def.Parts, ast.Part{Kind: ast.Keyword, Text: tok.Value})
		default:
			break parts
		}
		end = tok.Span
		p.pos++
	}
	if len(def.Parts) == 0 {
		return nil, p.errorf("syntax %s has no parts", name)
	}
	def.Span = first.Span.Join(end)
	return def, nil
}

// spanner accumulates the span of a rule application.
type spanner struct {
	span source.Span
	set  bool
}

func (s *spanner) add(span source.Span) {
	if !s.set {
		s.span, s.set = span, true
		return
	}
	s.span = s.span.Join(span)
}

// readUntil parses starting from an optional operand that has not been
// assigned to a rule yet, and stops at the first position that until does
// not allow to resume into.
func (p *parser) readUntil(s *syntax.Syntax, unassigned ast.Ast, until *ast.BindingPower) (ast.Ast, error) {
	for {
		node := s.Root()
		atRoot := true
		var assigned []ast.Ast
		var span spanner

	tokens:
		for !p.done() {
			tok := p.front()
			edge := syntax.Edge{Keyword: tok.Raw, ValueBefore: unassigned != nil}
			if next, ok := node.Next(edge); ok {
				// A rule that starts with a keyword is always entered from an
				// operand position; the threshold only limits what follows it.
				if !atRoot || unassigned != nil {
					resume, err := syntax.ShouldResume(until, *next.BindingPower)
					if err != nil {
						return nil, errors.Wrapf(err, "%s:%s", p.file, tok.Span.Start)
					}
					if !resume {
						break
					}
				}
				p.pos++
				node = next
				atRoot = false
				if unassigned != nil {
					span.add(unassigned.NodeSpan())
					assigned = append(assigned, unassigned)
					unassigned = nil
				}
				span.add(tok.Span)
				continue
			}

			_, startsRule := s.Root().Next(syntax.Edge{Keyword: tok.Raw})
			startsRule = startsRule && unassigned == nil
			// A rule that needs an operand here reads a keyword-like word
			// that leads nowhere as a plain name, e.g. `impl syntax and`.
			word := tok.Kind == lexer.Ident && !atRoot && unassigned == nil && node.Finish(false) == nil
			if !startsRule && !word && s.IsKeyword(tok.Raw) && tok.Raw != "syntax" {
				break tokens
			}
			if unassigned != nil {
				return nil, p.errorf("unexpected %q", tok.Raw)
			}

			var threshold *ast.BindingPower
			if startsRule {
				// Nothing can follow a complete rule like `f(x)` here, so the
				// keyword starts an operand after it: `f(x)(y)`, `(a) - 1`.
				if !atRoot && !node.AcceptsValue() {
					break tokens
				}
				if node.CanFinish() || node.HasEdgeIn(s.Root()) {
					threshold = node.BindingPower
				}
				v, err := p.readUntil(s, nil, threshold)
				if err != nil {
					return nil, err
				}
				unassigned = v
				continue
			}

			inner := s
			var value ast.Ast
			if tok.Raw == "syntax" {
				def, err := p.readSyntaxDef()
				if err != nil {
					return nil, err
				}
				if inner, err = s.With(def); err != nil {
					return nil, err
				}
				value = &ast.SyntaxDef{Def: def, Span: def.Span}
			} else {
				p.pos++
				value = &ast.Simple{Token: tok, Span: tok.Span}
			}

			// A definition extends the grammar up to the end of the
			// enclosing group, so what follows it is read without a limit.
			if _, isDef := value.(*ast.SyntaxDef); !isDef && (node.CanFinish() || node.HasEdgeIn(inner.Root())) {
				threshold = node.BindingPower
			}
			v, err := p.readUntil(inner, value, threshold)
			if err != nil {
				return nil, err
			}
			unassigned = v
		}

		if atRoot {
			return unassigned, nil
		}

		pending := unassigned != nil
		def := node.Finish(pending)
		if def != nil && pending {
			span.add(unassigned.NodeSpan())
			assigned = append(assigned, unassigned)
			unassigned = nil
		} else if def == nil {
			def = node.Finish(false)
		}
		if def == nil {
			if p.done() {
				return nil, p.errorf("unexpected end of input")
			}
			return nil, p.errorf("unexpected %q", p.front().Raw)
		}
		if unassigned != nil {
			return nil, p.errorf("unexpected value after %s", def.Name)
		}
		values, err := def.AssignValues(assigned)
		if err != nil {
			return nil, p.errorf("%s", err)
		}
		unassigned = &ast.Complex{Definition: def, Values: values, Span: span.span}
	}
}
