package stdlib

import (
	"context"
	"fmt"
	"math"

	"github.com/thomasrohde/morph/pkg/ir"
)

func errorf(name, format string, args ...any) error {
	return fmt.Errorf("%s: %s", name, fmt.Sprintf(format, args...))
}

type numOp struct {
	i64 func(a, b int64) (int64, error)
	f64 func(a, b float64) float64
}

var errDivByZero = fmt.Errorf("division by zero")

var (
	addOp = numOp{
		i64: func(a, b int64) (int64, error) { return a + b, nil },
		f64: func(a, b float64) float64 { return a + b },
	}
	subOp = numOp{
		i64: func(a, b int64) (int64, error) { return a - b, nil },
		f64: func(a, b float64) float64 { return a - b },
	}
	mulOp = numOp{
		i64: func(a, b int64) (int64, error) { return a * b, nil },
		f64: func(a, b float64) float64 { return a * b },
	}
	divOp = numOp{
		i64: func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errDivByZero
			}
			return a / b, nil
		},
		f64: func(a, b float64) float64 { return a / b },
	}
	remOp = numOp{
		i64: func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errDivByZero
			}
			return a % b, nil
		},
		f64: math.Mod,
	}
)

// add, sub, mul, div, rem { a: number, b: number } → number of the same type
func arith(name string, op numOp) ir.NativeFunc {
	return func(_ context.Context, arg ir.Value) (ir.Value, error) {
		a, b, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		switch x := a.(type) {
		case ir.Int32:
			y, ok := b.(ir.Int32)
			if !ok {
				break
			}
			n, err := op.i64(int64(x), int64(y))
			if err != nil {
				return nil, errorf(name, "%s", err)
			}
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, errorf(name, "int32 overflow")
			}
			return ir.Int32(n), nil
		case ir.Int64:
			y, ok := b.(ir.Int64)
			if !ok {
				break
			}
			n, err := op.i64(int64(x), int64(y))
			if err != nil {
				return nil, errorf(name, "%s", err)
			}
			return ir.Int64(n), nil
		case ir.Float64:
			y, ok := b.(ir.Float64)
			if !ok {
				break
			}
			return ir.Float64(op.f64(float64(x), float64(y))), nil
		}
		return nil, errorf(name, "expected two numbers of the same type, got %s and %s", a, b)
	}
}

// neg number → number
func stdlibNeg(_ context.Context, arg ir.Value) (ir.Value, error) {
	arg = single(arg)
	switch x := arg.(type) {
	case ir.Int32:
		return -x, nil
	case ir.Int64:
		return -x, nil
	case ir.Float64:
		return -x, nil
	}
	return nil, errorf("neg", "expected a number, got %s", arg)
}
