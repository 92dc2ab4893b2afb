// Package validator implements static checks over a parsed morph program,
// run before it is compiled.
package validator

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/compiler"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/source"
)

// patternSlots names, per builtin, the children that are patterns.
var patternSlots = map[string][]string{
	"let":          {"pattern"},
	"const_let":    {"pattern"},
	"function_def": {"arg"},
	"template_def": {"arg"},
	"is":           {"pattern"},
}

type validator struct {
	diags []diagnostics.Diagnostic
	// quoted counts the quote nodes around the current one.
	quoted int
}

// Validate checks node and returns every problem found. It reports:
//   - uses of builtin macros that do not exist,
//   - `$` outside of quote,
//   - a name bound twice by one pattern.
func Validate(node ast.Ast) []diagnostics.Diagnostic {
	v := &validator{}
	v.walk(node)
	return v.diags
}

func (v *validator) addDiag(code, msg string, span source.Span, hint string) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, &span, hint))
}

func builtinName(def *ast.SyntaxDefinition) (string, bool) {
	return strings.CutPrefix(def.Name, compiler.BuiltinPrefix)
}

func (v *validator) checkDefinition(def *ast.SyntaxDefinition, span source.Span) {
	name, ok := builtinName(def)
	if !ok {
		return
	}
	if err := compiler.LookupBuiltin(name); err != nil {
		d := diagnostics.FromError(err)
		v.addDiag(d.Code, d.Message, span, d.Hint)
	}
}

func (v *validator) walk(node ast.Ast) {
	switch n := node.(type) {
	case *ast.SyntaxDef:
		v.checkDefinition(n.Def, n.Span)
	case *ast.Complex:
		name, isBuiltin := builtinName(n.Definition)
		if isBuiltin {
			v.checkDefinition(n.Definition, n.Span)
		}
		switch {
		case isBuiltin && name == "quote":
			v.quoted++
			defer func() { v.quoted-- }()
		case isBuiltin && name == "unquote":
			if v.quoted == 0 {
				v.addDiag(diagnostics.EValidate, "$ can only be used inside quote", n.Span, "")
				break
			}
			v.quoted--
			defer func() { v.quoted++ }()
		}
		if isBuiltin && v.quoted == 0 {
			for _, slot := range patternSlots[name] {
				if p, ok := n.Values.Get(slot); ok {
					v.checkPattern(p)
				}
			}
		}
		for _, child := range n.Values.All() {
			v.walk(child)
		}
	}
}

// checkPattern reports names a pattern binds more than once.
func (v *validator) checkPattern(p ast.Ast) {
	seen := set.New[string](4)
	var visit func(ast.Ast)
	visit = func(p ast.Ast) {
		if name, ok := ast.Ident(p); ok {
			if !seen.Insert(name) {
				v.addDiag(diagnostics.EValidate, fmt.Sprintf("%s is bound twice in one pattern", name), p.NodeSpan(), "")
			}
			return
		}
		c, ok := p.(*ast.Complex)
		if !ok {
			return
		}
		name, _ := builtinName(c.Definition)
		switch name {
		case "tuple", "scope":
			for _, child := range c.Values.All() {
				visit(child)
			}
		case "field", "type_ascribe", "variant":
			if value, ok := c.Values.Get("value"); ok {
				visit(value)
			}
		}
	}
	visit(p)
}
