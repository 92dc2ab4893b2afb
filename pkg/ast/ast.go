// Package ast defines syntax definitions and the syntax tree produced by the
// parser.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/lexer"
	"github.com/thomasrohde/morph/pkg/source"
)

// Associativity breaks ties between rules of equal priority.
type Associativity int

const (
	Left Associativity = iota
	Right
)

func (a Associativity) String() string {
	if a == Left {
		return "left"
	}
	return "right"
}

// Arrow returns the direction marker used in syntax declarations.
func (a Associativity) Arrow() string {
	if a == Left {
		return "<-"
	}
	return "->"
}

// Priority orders syntax definitions. A smaller priority binds tighter.
type Priority float64

func (p Priority) String() string {
	return strconv.FormatFloat(float64(p), 'g', -1, 64)
}

// BindingPower decides whether parsing continues into an operator position.
type BindingPower struct {
	Priority      Priority
	Associativity Associativity
}

func (bp BindingPower) String() string {
	return fmt.Sprintf("%s %s", bp.Associativity.Arrow(), bp.Priority)
}

// PartKind identifies a syntax definition part.
type PartKind int

const (
	Keyword PartKind = iota
	NamedBinding
	UnnamedBinding
)

// Part is a single element of a syntax definition.
type Part struct {
	Kind PartKind
	// Text is the keyword for Keyword parts and the binding name for
	// NamedBinding parts.
	Text string
}

func (p Part) String() string {
	switch p.Kind {
	case Keyword:
		return strconv.Quote(p.Text)
	case NamedBinding:
		return p.Text
	}
	return "_"
}

// SyntaxDefinition is an immutable grammar rule. Definitions are compared by
// identity: two textually identical definitions are different rules.
type SyntaxDefinition struct {
	Name          string
	Priority      Priority
	Associativity Associativity
	Parts         []Part
	Span          source.Span
}

func (d *SyntaxDefinition) BindingPower() BindingPower {
	return BindingPower{Priority: d.Priority, Associativity: d.Associativity}
}

// Keywords returns the keyword parts in order.
func (d *SyntaxDefinition) Keywords() []string {
	var out []string
	for _, p := range d.Parts {
		if p.Kind == Keyword {
			out = append(out, p.Text)
		}
	}
	return out
}

// BindingCount returns the number of values a complete application holds.
func (d *SyntaxDefinition) BindingCount() int {
	n := 0
	for _, p := range d.Parts {
		if p.Kind != Keyword {
			n++
		}
	}
	return n
}

func (d *SyntaxDefinition) String() string {
	parts := make([]string, len(d.Parts))
	for i, p := range d.Parts {
		parts[i] = p.String()
	}
	return fmt.Sprintf("syntax %s %s %s = %s", quoteName(d.Name), d.Associativity.Arrow(), d.Priority, strings.Join(parts, " "))
}

func quoteName(name string) string {
	for i, r := range name {
		if !(r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || (i > 0 && '0' <= r && r <= '9')) {
			return "@" + strconv.Quote(name)
		}
	}
	return name
}

// AssignValues distributes parsed values over the binding parts in order.
func (d *SyntaxDefinition) AssignValues(values []Ast) (Tuple[Ast], error) {
	result := NewTuple[Ast]()
	i := 0
	for _, p := range d.Parts {
		if p.Kind == Keyword {
			continue
		}
		if i >= len(values) {
			return Tuple[Ast]{}, errors.Errorf("not enough values for %s: got %d", d.Name, len(values))
		}
		if p.Kind == NamedBinding {
			result.Named[p.Text] = values[i]
		} else {
			result.Unnamed = append(result.Unnamed, values[i])
		}
		i++
	}
	if i != len(values) {
		return Tuple[Ast]{}, errors.Errorf("too many values for %s: got %d", d.Name, len(values))
	}
	return result, nil
}

// Ast is a node of the syntax tree.
type Ast interface {
	Kind() string
	NodeSpan() source.Span
	astNode()
}

// Simple is a single token.
type Simple struct {
	Token lexer.Token
	Span  source.Span
}

func (n *Simple) Kind() string          { return "Simple" }
func (n *Simple) NodeSpan() source.Span { return n.Span }
func (n *Simple) astNode()              {}

// Complex is an application of a syntax definition to its values.
type Complex struct {
	Definition *SyntaxDefinition
	Values     Tuple[Ast]
	Span       source.Span
}

func (n *Complex) Kind() string          { return "Complex" }
func (n *Complex) NodeSpan() source.Span { return n.Span }
func (n *Complex) astNode()              {}

// SyntaxDef is an inline grammar declaration.
type SyntaxDef struct {
	Def  *SyntaxDefinition
	Span source.Span
}

func (n *SyntaxDef) Kind() string          { return "SyntaxDef" }
func (n *SyntaxDef) NodeSpan() source.Span { return n.Span }
func (n *SyntaxDef) astNode()              {}

// Token returns the token of a Simple node.
func Token(a Ast) (lexer.Token, bool) {
	if s, ok := a.(*Simple); ok {
		return s.Token, true
	}
	return lexer.Token{}, false
}

// Ident returns the identifier name of a Simple node.
func Ident(a Ast) (string, bool) {
	tok, ok := Token(a)
	if !ok || tok.Kind != lexer.Ident {
		return "", false
	}
	return tok.Value, true
}
