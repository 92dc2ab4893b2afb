package evaluator

import (
	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/diagnostics"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/scope"
)

// Bind matches v against an irrefutable pattern and inserts the bound
// values into env.
func (in *Interpreter) Bind(env *ir.Env, p ir.Pattern, v ir.Value) error {
	matched, err := in.Match(env, p, v)
	if err != nil {
		return err
	}
	if !matched {
		return runtimeErr(diagnostics.EMatch, p.Info().Span, "%s does not match the pattern", v)
	}
	return nil
}

// Match matches v against p. Bindings are inserted into env only when the
// whole pattern matches.
func (in *Interpreter) Match(env *ir.Env, p ir.Pattern, v ir.Value) (bool, error) {
	var bound []scope.Entry[ir.Value]
	if !matchPattern(p, v, &bound) {
		return false, nil
	}
	for _, entry := range bound {
		env.InsertSymbol(entry.Symbol, entry.Value)
	}
	return true, nil
}

func matchPattern(p ir.Pattern, v ir.Value, bound *[]scope.Entry[ir.Value]) bool {
	switch p := p.(type) {
	case *ir.PlaceholderPattern:
		return true
	case *ir.UnitPattern:
		switch v := v.(type) {
		case ir.Unit:
			return true
		case ir.Tuple:
			return v.Fields.Len() == 0
		}
		return false
	case *ir.BindingPattern:
		*bound = append(*bound, scope.Entry[ir.Value]{Symbol: p.Binding.Symbol, Value: v})
		return true
	case *ir.TuplePattern:
		t, ok := v.(ir.Tuple)
		if !ok {
			return false
		}
		fields, err := ast.Zip(p.Fields, t.Fields)
		if err != nil {
			return false
		}
		for _, f := range fields {
			if !matchPattern(f.Left, f.Right, bound) {
				return false
			}
		}
		return true
	case *ir.VariantPattern:
		variant, ok := v.(ir.Variant)
		if !ok || variant.Name != p.Name {
			return false
		}
		if p.Value == nil {
			return variant.Value == nil
		}
		return variant.Value != nil && matchPattern(p.Value, variant.Value, bound)
	}
	return false
}
