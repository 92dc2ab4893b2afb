package syntax_test

import (
	"errors"
	"testing"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/syntax"
)

func infix(name, op string, priority ast.Priority, assoc ast.Associativity) *ast.SyntaxDefinition {
	return &ast.SyntaxDefinition{
		Name:          name,
		Priority:      priority,
		Associativity: assoc,
		Parts: []ast.Part{
			{Kind: ast.UnnamedBinding},
			{Kind: ast.Keyword, Text: op},
			{Kind: ast.UnnamedBinding},
		},
	}
}

func mustInsert(t *testing.T, s *syntax.Syntax, defs ...*ast.SyntaxDefinition) {
	t.Helper()
	for _, def := range defs {
		if err := s.Insert(def); err != nil {
			t.Fatalf("insert %s: %v", def.Name, err)
		}
	}
}

func TestInsertBuildsEdges(t *testing.T) {
	s := syntax.Empty()
	plus := infix("plus", "+", 10, ast.Left)
	mustInsert(t, s, plus)

	node, ok := s.Root().Next(syntax.Edge{Keyword: "+", ValueBefore: true})
	if !ok {
		t.Fatal("expected an edge for infix +")
	}
	if _, ok := s.Root().Next(syntax.Edge{Keyword: "+", ValueBefore: false}); ok {
		t.Error("prefix + should not exist")
	}
	if node.Finish(true) != plus {
		t.Error("expected plus to finish with a pending value")
	}
	if node.Finish(false) != nil {
		t.Error("unexpected finish without a pending value")
	}
	if !s.IsKeyword("+") || s.IsKeyword("-") {
		t.Error("keyword set is wrong")
	}
}

func TestPrefixAndInfixShareKeyword(t *testing.T) {
	s := syntax.Empty()
	neg := &ast.SyntaxDefinition{
		Name:          "neg",
		Priority:      3,
		Associativity: ast.Right,
		Parts:         []ast.Part{{Kind: ast.Keyword, Text: "-"}, {Kind: ast.UnnamedBinding}},
	}
	mustInsert(t, s, infix("minus", "-", 30, ast.Left), neg)
	if _, ok := s.Root().Next(syntax.Edge{Keyword: "-", ValueBefore: false}); !ok {
		t.Error("expected prefix edge")
	}
	if _, ok := s.Root().Next(syntax.Edge{Keyword: "-", ValueBefore: true}); !ok {
		t.Error("expected infix edge")
	}
}

func TestOptionalTail(t *testing.T) {
	s := syntax.Empty()
	then := infix("then", ";", 100, ast.Left)
	trailing := &ast.SyntaxDefinition{
		Name:          "then_unit",
		Priority:      100,
		Associativity: ast.Left,
		Parts:         []ast.Part{{Kind: ast.UnnamedBinding}, {Kind: ast.Keyword, Text: ";"}},
	}
	mustInsert(t, s, then, trailing)
	node, _ := s.Root().Next(syntax.Edge{Keyword: ";", ValueBefore: true})
	if node.Finish(true) != then || node.Finish(false) != trailing {
		t.Error("expected both finish slots to be used")
	}
}

func TestAcceptsValue(t *testing.T) {
	s := syntax.Empty()
	call := &ast.SyntaxDefinition{
		Name:     "call",
		Priority: 2,
		Parts: []ast.Part{
			{Kind: ast.UnnamedBinding},
			{Kind: ast.Keyword, Text: "("},
			{Kind: ast.UnnamedBinding},
			{Kind: ast.Keyword, Text: ")"},
		},
	}
	mustInsert(t, s, infix("plus", "+", 10, ast.Left), call)

	plus, _ := s.Root().Next(syntax.Edge{Keyword: "+", ValueBefore: true})
	if !plus.AcceptsValue() {
		t.Error("plus should accept its right operand")
	}
	open, _ := s.Root().Next(syntax.Edge{Keyword: "(", ValueBefore: true})
	if !open.AcceptsValue() {
		t.Error("call should accept its argument")
	}
	closed, _ := open.Next(syntax.Edge{Keyword: ")", ValueBefore: true})
	if closed.AcceptsValue() {
		t.Error("a closed call takes no further operand")
	}
}

func TestConflicts(t *testing.T) {
	tests := []struct {
		name string
		defs []*ast.SyntaxDefinition
	}{
		{
			name: "opposite associativity at the same priority",
			defs: []*ast.SyntaxDefinition{infix("a", "+", 5, ast.Left), infix("b", "*", 5, ast.Right)},
		},
		{
			name: "same finish slot",
			defs: []*ast.SyntaxDefinition{infix("a", "+", 5, ast.Left), infix("b", "+", 5, ast.Left)},
		},
		{
			name: "shared keyword with a different priority",
			defs: []*ast.SyntaxDefinition{infix("a", "+", 5, ast.Left), infix("b", "+", 6, ast.Left)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := syntax.Empty()
			mustInsert(t, s, tt.defs[0])
			err := s.Insert(tt.defs[1])
			var conflict *syntax.ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if d := conflict.Diagnostic(); d.Code != diagnostics.EGrammarConflict {
				t.Errorf("code = %s", d.Code)
			}
			if len(s.Definitions()) != 1 {
				t.Error("failed insert must leave the table unchanged")
			}
		})
	}
}

func TestInsertRejectsKeywordFreeDefinition(t *testing.T) {
	s := syntax.Empty()
	def := &ast.SyntaxDefinition{Name: "juxtapose", Parts: []ast.Part{{Kind: ast.UnnamedBinding}}}
	if err := s.Insert(def); err == nil {
		t.Error("expected error")
	}
}

func TestCloneIsolation(t *testing.T) {
	base := syntax.Empty()
	mustInsert(t, base, infix("plus", "+", 10, ast.Left))

	a := base.Clone()
	b := base.Clone()
	mustInsert(t, a, infix("times", "*", 5, ast.Left))
	mustInsert(t, b, infix("pow", "^", 4, ast.Right))

	star := syntax.Edge{Keyword: "*", ValueBefore: true}
	caret := syntax.Edge{Keyword: "^", ValueBefore: true}
	if _, ok := base.Root().Next(star); ok {
		t.Error("base sees an edge inserted into a clone")
	}
	if _, ok := b.Root().Next(star); ok {
		t.Error("sibling clone sees * edge")
	}
	if _, ok := a.Root().Next(caret); ok {
		t.Error("sibling clone sees ^ edge")
	}
	if base.IsKeyword("*") || b.IsKeyword("*") {
		t.Error("keyword leaked out of a clone")
	}
	// A priority used only by a sibling must not conflict.
	mustInsert(t, a, infix("rpow", "**", 4, ast.Left))
}

func TestShouldResume(t *testing.T) {
	left5 := ast.BindingPower{Priority: 5, Associativity: ast.Left}
	right5 := ast.BindingPower{Priority: 5, Associativity: ast.Right}
	left10 := ast.BindingPower{Priority: 10, Associativity: ast.Left}

	tests := []struct {
		name  string
		until *ast.BindingPower
		next  ast.BindingPower
		want  bool
	}{
		{"no threshold", nil, left10, true},
		{"tighter continues", &left10, left5, true},
		{"looser stops", &left5, left10, false},
		{"equal left stops", &left5, left5, false},
		{"equal right continues", &right5, right5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := syntax.ShouldResume(tt.until, tt.next)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldResume = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := syntax.ShouldResume(&left5, right5); err == nil {
		t.Error("expected conflict for mismatched associativity")
	}
}
