// Package syntax implements the grammar table: a persistent trie of syntax
// definitions consulted by the parser.
//
// A table is never mutated once shared. Insert copies every node on the path
// it touches, so extending a clone leaves the original and all other clones
// unchanged.
package syntax

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
)

// Edge is a transition of the automaton: the next keyword and whether an
// operand that has not been assigned yet precedes it.
type Edge struct {
	Keyword     string
	ValueBefore bool
}

// Node is a state of the automaton.
type Node struct {
	// BindingPower is nil only for the root.
	BindingPower *ast.BindingPower
	next         map[Edge]*Node
	// finish is indexed by whether a pending value completes the rule.
	finish [2]*ast.SyntaxDefinition
}

// Next returns the node reached through edge.
func (n *Node) Next(edge Edge) (*Node, bool) {
	child, ok := n.next[edge]
	return child, ok
}

// Edges returns the number of outgoing edges.
func (n *Node) Edges() int { return len(n.next) }

// HasEdgeIn reports whether any outgoing edge of n also leaves other.
func (n *Node) HasEdgeIn(other *Node) bool {
	for edge := range n.next {
		if _, ok := other.next[edge]; ok {
			return true
		}
	}
	return false
}

// Finish returns the definition completed at this node.
func (n *Node) Finish(valuePending bool) *ast.SyntaxDefinition {
	return n.finish[index(valuePending)]
}

// CanFinish reports whether any definition completes at this node.
func (n *Node) CanFinish() bool {
	return n.finish[0] != nil || n.finish[1] != nil
}

// AcceptsValue reports whether an operand read at this node can still be
// assigned, either by finishing with it or by an edge that follows it.
func (n *Node) AcceptsValue() bool {
	if n.finish[1] != nil {
		return true
	}
	for edge := range n.next {
		if edge.ValueBefore {
			return true
		}
	}
	return false
}

func index(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (n *Node) copy() *Node {
	c := &Node{BindingPower: n.BindingPower, finish: n.finish, next: make(map[Edge]*Node, len(n.next)+1)}
	for edge, child := range n.next {
		c.next[edge] = child
	}
	return c
}

// Syntax is a grammar table.
type Syntax struct {
	root       *Node
	keywords   *set.Set[string]
	priorities map[ast.Priority]*ast.SyntaxDefinition
	defs       []*ast.SyntaxDefinition
}

// Empty returns a table with no definitions.
func Empty() *Syntax {
	return &Syntax{
		root:       &Node{next: map[Edge]*Node{}},
		keywords:   set.New[string](0),
		priorities: map[ast.Priority]*ast.SyntaxDefinition{},
	}
}

// Root returns the automaton's start node.
func (s *Syntax) Root() *Node { return s.root }

// IsKeyword reports whether text is a keyword of any definition.
func (s *Syntax) IsKeyword(text string) bool {
	return s.keywords.Contains(text)
}

// Definitions returns the inserted definitions in insertion order.
func (s *Syntax) Definitions() []*ast.SyntaxDefinition {
	return append([]*ast.SyntaxDefinition(nil), s.defs...)
}

// Clone returns a table that shares structure with s. Inserting into either
// one does not affect the other.
func (s *Syntax) Clone() *Syntax {
	priorities := make(map[ast.Priority]*ast.SyntaxDefinition, len(s.priorities))
	for p, def := range s.priorities {
		priorities[p] = def
	}
	return &Syntax{
		root:       s.root,
		keywords:   s.keywords.Copy(),
		priorities: priorities,
		defs:       append([]*ast.SyntaxDefinition(nil), s.defs...),
	}
}

// With returns a clone of s extended with defs.
func (s *Syntax) With(defs ...*ast.SyntaxDefinition) (*Syntax, error) {
	c := s.Clone()
	for _, def := range defs {
		if err := c.Insert(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Insert adds def to the table. The table is left unchanged on error.
func (s *Syntax) Insert(def *ast.SyntaxDefinition) error {
	if len(def.Keywords()) == 0 {
		return errors.Errorf("syntax %s has no keywords", def.Name)
	}
	bp := def.BindingPower()
	if prev, ok := s.priorities[def.Priority]; ok && prev.Associativity != def.Associativity {
		return &ConflictError{Existing: prev, New: def, Reason: fmt.Sprintf("priority %s is already %s associative", def.Priority, prev.Associativity)}
	}

	root := s.root.copy()
	node := root
	valueBefore := false
	lastWasBinding := false
	for _, part := range def.Parts {
		if part.Kind != ast.Keyword {
			if lastWasBinding {
				return errors.Errorf("syntax %s has two consecutive bindings", def.Name)
			}
			valueBefore = true
			lastWasBinding = true
			continue
		}
		lastWasBinding = false
		edge := Edge{Keyword: part.Text, ValueBefore: valueBefore}
		var child *Node
		if existing, ok := node.next[edge]; ok {
			if *existing.BindingPower != bp {
				return &ConflictError{
					Existing: existingDef(existing),
					New:      def,
					Reason:   fmt.Sprintf("keyword %q is already used with binding power %s", part.Text, existing.BindingPower),
				}
			}
			child = existing.copy()
		} else {
			p := bp
			child = &Node{BindingPower: &p, next: map[Edge]*Node{}}
		}
		node.next[edge] = child
		node = child
		valueBefore = false
	}

	slot := index(valueBefore)
	if prev := node.finish[slot]; prev != nil {
		return &ConflictError{Existing: prev, New: def, Reason: "both definitions finish at the same position"}
	}
	node.finish[slot] = def

	s.root = root
	for _, kw := range def.Keywords() {
		s.keywords.Insert(kw)
	}
	s.priorities[def.Priority] = def
	s.defs = append(s.defs, def)
	return nil
}

// existingDef finds any definition reachable from n, for error messages.
func existingDef(n *Node) *ast.SyntaxDefinition {
	if n.finish[0] != nil {
		return n.finish[0]
	}
	if n.finish[1] != nil {
		return n.finish[1]
	}
	for _, child := range n.next {
		if def := existingDef(child); def != nil {
			return def
		}
	}
	return nil
}

// ShouldResume reports whether the parser may continue into a position with
// binding power next while the caller's threshold is until. A nil threshold
// never stops. A smaller priority binds tighter. At equal priority a left
// associative rule stops and a right associative rule continues.
func ShouldResume(until *ast.BindingPower, next ast.BindingPower) (bool, error) {
	if until == nil {
		return true, nil
	}
	switch {
	case next.Priority < until.Priority:
		return true, nil
	case next.Priority > until.Priority:
		return false, nil
	}
	if next.Associativity != until.Associativity {
		return false, &ConflictError{Reason: fmt.Sprintf("priority %s is used with both associativities", next.Priority)}
	}
	return until.Associativity == ast.Right, nil
}

// ConflictError reports an ambiguous grammar.
type ConflictError struct {
	Existing *ast.SyntaxDefinition
	New      *ast.SyntaxDefinition
	Reason   string
}

func (e *ConflictError) Error() string {
	switch {
	case e.Existing != nil && e.New != nil:
		return fmt.Sprintf("syntax %s conflicts with %s: %s", e.New.Name, e.Existing.Name, e.Reason)
	case e.New != nil:
		return fmt.Sprintf("syntax %s conflicts: %s", e.New.Name, e.Reason)
	}
	return "grammar conflict: " + e.Reason
}

// Diagnostic implements diagnostics.Diagnoser.
func (e *ConflictError) Diagnostic() diagnostics.Diagnostic {
	d := diagnostics.MakeDiag(diagnostics.EGrammarConflict, e.Error(), nil, "")
	if e.New != nil && e.New.Span.File != "" {
		span := e.New.Span
		d.Span = &span
	}
	if e.Existing != nil {
		d.Hint = "existing definition: " + e.Existing.String()
	}
	return d
}
