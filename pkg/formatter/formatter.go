// Package formatter renders syntax trees back to text.
package formatter

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/morph/pkg/ast"
)

const indent = "  "

// shortLimit caps the length of Short output.
const shortLimit = 80

// Short renders a on one line, with parentheses where the tree shape would
// otherwise be lost. Long output is cut with "...".
func Short(a ast.Ast) string {
	var b strings.Builder
	writeInline(&b, a)
	out := b.String()
	if len([]rune(out)) > shortLimit {
		out = string([]rune(out)[:shortLimit-3]) + "..."
	}
	return out
}

// Inline is Short without the length limit.
func Inline(a ast.Ast) string {
	var b strings.Builder
	writeInline(&b, a)
	return b.String()
}

func writeInline(b *strings.Builder, a ast.Ast) {
	switch a := a.(type) {
	case nil:
		b.WriteString("()")
	case *ast.Simple:
		b.WriteString(a.Token.Raw)
	case *ast.SyntaxDef:
		b.WriteString(a.Def.String())
	case *ast.Complex:
		unnamed := 0
		for i, part := range a.Definition.Parts {
			if i > 0 {
				b.WriteByte(' ')
			}
			if part.Kind == ast.Keyword {
				b.WriteString(part.Text)
				continue
			}
			var child ast.Ast
			if part.Kind == ast.NamedBinding {
				child = a.Values.Named[part.Text]
			} else if unnamed < len(a.Values.Unnamed) {
				child = a.Values.Unnamed[unnamed]
				unnamed++
			}
			if needsParens(a.Definition, i, child) {
				b.WriteByte('(')
				writeInline(b, child)
				b.WriteByte(')')
			} else {
				writeInline(b, child)
			}
		}
	}
}

// needsParens reports whether child, placed at part index i of parent,
// would be read back differently without parentheses.
func needsParens(parent *ast.SyntaxDefinition, i int, child ast.Ast) bool {
	c, ok := child.(*ast.Complex)
	if !ok || !openEnded(c.Definition) {
		return false
	}
	parts := parent.Parts
	enclosed := i > 0 && parts[i-1].Kind == ast.Keyword && i+1 < len(parts) && parts[i+1].Kind == ast.Keyword
	if enclosed {
		return false
	}
	switch {
	case c.Definition.Priority > parent.Priority:
		return true
	case c.Definition.Priority < parent.Priority:
		return false
	}
	first, last := i == 0, i == len(parts)-1
	if parent.Associativity == ast.Left {
		return !first
	}
	return !last
}

// openEnded reports whether def starts or ends with a value, so that a
// neighbouring operator could capture part of it.
func openEnded(def *ast.SyntaxDefinition) bool {
	if len(def.Parts) == 0 {
		return false
	}
	return def.Parts[0].Kind != ast.Keyword || def.Parts[len(def.Parts)-1].Kind != ast.Keyword
}

// Indented renders a as a tree, one node per line.
func Indented(a ast.Ast) string {
	var lines []string
	writeTree(&lines, a, "", 0)
	return strings.Join(lines, "\n") + "\n"
}

func writeTree(lines *[]string, a ast.Ast, label string, depth int) {
	prefix := strings.Repeat(indent, depth)
	if label != "" {
		prefix += label + ": "
	}
	switch a := a.(type) {
	case nil:
		*lines = append(*lines, prefix+"()")
	case *ast.Simple:
		*lines = append(*lines, prefix+a.Token.Raw)
	case *ast.SyntaxDef:
		*lines = append(*lines, prefix+a.Def.String())
	case *ast.Complex:
		def := a.Definition
		*lines = append(*lines, fmt.Sprintf("%s%s %s", prefix, displayName(def.Name), def.BindingPower()))
		for name, child := range a.Values.All() {
			writeTree(lines, child, name, depth+1)
		}
	}
}

func displayName(name string) string {
	if strings.ContainsAny(name, " \t") {
		return fmt.Sprintf("%q", name)
	}
	return name
}
