package compiler

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/types"
)

// collectList flattens a chain of applications of same-named definitions,
// such as `a, b, c` or `a; b; c`, into its items. first and second name the
// children that link the chain; second may be missing, which ends the list
// early. trailing reports whether the outermost link had no second child,
// as in `a; b;`.
func collectList(node *ast.Complex, first, second string) (items []ast.Ast, trailing bool, err error) {
	name := node.Definition.Name
	link := func(a ast.Ast) (*ast.Complex, bool) {
		c, ok := a.(*ast.Complex)
		return c, ok && c.Definition.Name == name
	}

	if node.Definition.Associativity == ast.Left {
		var cur ast.Ast = node
		for outer := true; ; outer = false {
			c, ok := link(cur)
			if !ok {
				items = append(items, cur)
				break
			}
			req, opt, err := c.Values.IntoNamedOpt([]string{first}, []string{second})
			if err != nil {
				return nil, false, argsErr(err)
			}
			if opt[0].OK {
				items = append(items, opt[0].Value)
			} else if outer {
				trailing = true
			}
			cur = req[0]
		}
		slices.Reverse(items)
		return items, trailing, nil
	}

	var cur ast.Ast = node
	for {
		c, ok := link(cur)
		if !ok {
			items = append(items, cur)
			return items, false, nil
		}
		req, opt, err := c.Values.IntoNamedOpt([]string{first}, []string{second})
		if err != nil {
			return nil, false, argsErr(err)
		}
		items = append(items, req[0])
		if !opt[0].OK {
			return items, true, nil
		}
		cur = opt[0].Value
	}
}

// fieldParts splits `name: value` into its parts. Other nodes are unnamed
// fields.
func fieldParts(item ast.Ast) (string, ast.Ast, error) {
	c, ok := isBuiltin(item, "field")
	if !ok {
		return "", item, nil
	}
	fields, err := c.Values.IntoNamed("name", "value")
	if err != nil {
		return "", nil, argsErr(err)
	}
	name, ok := ast.Ident(fields[0])
	if !ok {
		return "", nil, at(c.Span, argsErr(errors.New("field name must be an identifier")))
	}
	return name, fields[1], nil
}

func (st *state) tupleOf(items []ast.Ast, node ast.Ast) (ir.Expr, error) {
	fields := ast.NewTuple[ir.Expr]()
	for _, item := range items {
		name, value, err := fieldParts(item)
		if err != nil {
			return nil, err
		}
		if _, dup := fields.Named[name]; dup {
			return nil, at(item.NodeSpan(), errors.Errorf("field %s is given twice", name))
		}
		e, err := st.plain().expr(value)
		if err != nil {
			return nil, err
		}
		fields.Add(name, e)
	}
	return tupleExpr(fields, node), nil
}

// tupleExpr types a tuple literal. Until something else decides, it is a
// tuple value; used as a type, every field must be a type.
func tupleExpr(fields ast.Tuple[ir.Expr], node ast.Ast) *ir.TupleExpr {
	fieldTypes := ast.MapTuple(fields, func(e ir.Expr) types.Type { return e.Info().Type })
	t := types.WithDefault(types.Tuple{Fields: fieldTypes})
	_ = t.AddCheck(func(shape types.Inferred) error {
		switch shape := shape.(type) {
		case types.Primitive:
			if shape != types.TypeType {
				break
			}
			for _, ft := range fieldTypes.All() {
				if err := ft.Expect(types.TypeType); err != nil {
					return err
				}
			}
			return nil
		case types.Tuple:
			pairs, err := ast.Zip(shape.Fields, fieldTypes)
			if err != nil {
				return &types.UnificationError{Left: types.Tuple{Fields: fieldTypes}, Right: shape, Reason: err.Error()}
			}
			for _, pair := range pairs {
				if err := pair.Left.MakeSame(pair.Right); err != nil {
					return err
				}
			}
			return nil
		}
		return &types.UnificationError{Left: types.Tuple{Fields: fieldTypes}, Right: shape}
	})
	return &ir.TupleExpr{Data: data(t, node), Fields: fields}
}

func (st *state) tuplePatternOf(items []ast.Ast, node ast.Ast) (ir.Pattern, error) {
	fields := ast.NewTuple[ir.Pattern]()
	for _, item := range items {
		name, value, err := fieldParts(item)
		if err != nil {
			return nil, err
		}
		if _, dup := fields.Named[name]; dup {
			return nil, at(item.NodeSpan(), errors.Errorf("field %s is given twice", name))
		}
		p, err := st.pattern(value)
		if err != nil {
			return nil, err
		}
		fields.Add(name, p)
	}
	fieldTypes := ast.MapTuple(fields, func(p ir.Pattern) types.Type { return p.Info().Type })
	return &ir.TuplePattern{Data: data(types.Known(types.Tuple{Fields: fieldTypes}), node), Fields: fields}, nil
}
