package stdlib

import (
	"cmp"
	"context"

	"github.com/thomasrohde/morph/pkg/ir"
)

// eq, ne, lt, le, gt, ge { a, b } → bool
func compare(name string, accept func(int) bool) ir.NativeFunc {
	return func(_ context.Context, arg ir.Value) (ir.Value, error) {
		a, b, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		c, ok := order(a, b)
		if !ok {
			if name == "eq" || name == "ne" {
				return ir.Bool(ir.Equal(a, b) == (name == "eq")), nil
			}
			return nil, errorf(name, "can not compare %s and %s", a, b)
		}
		return ir.Bool(accept(c)), nil
	}
}

// order compares two values of the same ordered kind.
func order(a, b ir.Value) (int, bool) {
	switch x := a.(type) {
	case ir.Int32:
		y, ok := b.(ir.Int32)
		return cmp.Compare(x, y), ok
	case ir.Int64:
		y, ok := b.(ir.Int64)
		return cmp.Compare(x, y), ok
	case ir.Float64:
		y, ok := b.(ir.Float64)
		return cmp.Compare(x, y), ok
	case ir.String:
		y, ok := b.(ir.String)
		return cmp.Compare(x, y), ok
	case ir.Bool:
		y, ok := b.(ir.Bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !bool(x):
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// not bool → bool
func stdlibNot(_ context.Context, arg ir.Value) (ir.Value, error) {
	arg = single(arg)
	b, ok := arg.(ir.Bool)
	if !ok {
		return nil, errorf("not", "expected a bool, got %s", arg)
	}
	return !b, nil
}
