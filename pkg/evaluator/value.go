package evaluator

import (
	"github.com/pkg/errors"

	"github.com/thomasrohde/morph/pkg/ast"
	"github.com/thomasrohde/morph/pkg/ir"
	"github.com/thomasrohde/morph/pkg/types"
)

// AsType converts a value describing a type into the type. Besides type
// values it accepts unit, tuples of types, variants and merges of variants,
// which is how newtype definitions are written.
func AsType(v ir.Value) (types.Type, error) {
	switch v := v.(type) {
	case ir.TypeValue:
		return v.T, nil
	case ir.Unit:
		return types.Known(types.Unit), nil
	case ir.Tuple:
		fields, err := ast.MapTupleErr(v.Fields, func(_ string, field ir.Value) (types.Type, error) {
			return AsType(field)
		})
		if err != nil {
			return types.Type{}, err
		}
		return types.Known(types.Tuple{Fields: fields}), nil
	case ir.Variant:
		c, err := variantCase(v)
		if err != nil {
			return types.Type{}, err
		}
		return types.Known(types.Variant{Cases: []types.VariantCase{c}}), nil
	case ir.Multiset:
		cases := make([]types.VariantCase, 0, len(v.Values))
		for _, item := range v.Values {
			variant, ok := item.(ir.Variant)
			if !ok {
				return types.Type{}, errors.Errorf("expected a variant, got %s", item)
			}
			c, err := variantCase(variant)
			if err != nil {
				return types.Type{}, err
			}
			cases = append(cases, c)
		}
		return types.Known(types.Variant{Cases: cases}), nil
	}
	return types.Type{}, errors.Errorf("expected a type, got %s", v)
}

func variantCase(v ir.Variant) (types.VariantCase, error) {
	c := types.VariantCase{Name: v.Name}
	if v.Value == nil {
		return c, nil
	}
	payload, err := AsType(v.Value)
	if err != nil {
		return c, errors.Wrapf(err, "variant %s", v.Name)
	}
	c.Value = &payload
	return c, nil
}

// Truthy reports whether v is the boolean true.
func Truthy(v ir.Value) bool {
	b, ok := v.(ir.Bool)
	return ok && bool(b)
}
