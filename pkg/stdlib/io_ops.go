package stdlib

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/thomasrohde/morph/pkg/ir"
)

// print string → unit
func stdlibPrint(out io.Writer) ir.NativeFunc {
	return func(_ context.Context, arg ir.Value) (ir.Value, error) {
		if _, err := fmt.Fprintln(out, valueToString(arg)); err != nil {
			return nil, errorf("print", "%s", err)
		}
		return ir.Unit{}, nil
	}
}

// dbg any → unit, prints the value with its type
func stdlibDbg(out io.Writer) ir.NativeFunc {
	return func(_ context.Context, arg ir.Value) (ir.Value, error) {
		if _, err := fmt.Fprintln(out, ir.Describe(arg)); err != nil {
			return nil, errorf("dbg", "%s", err)
		}
		return ir.Unit{}, nil
	}
}

// read_file string → string
func stdlibReadFile(_ context.Context, arg ir.Value) (ir.Value, error) {
	path, ok := arg.(ir.String)
	if !ok {
		return nil, errorf("read_file", "expected a path, got %s", arg)
	}
	b, err := os.ReadFile(string(path))
	if err != nil {
		return nil, errorf("read_file", "%s", err)
	}
	return ir.String(b), nil
}
