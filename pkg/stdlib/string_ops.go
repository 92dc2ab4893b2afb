package stdlib

import (
	"context"
	"unicode/utf8"

	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/ir"
)

// concat { a: string, b: string } → string
func stdlibConcat(_ context.Context, arg ir.Value) (ir.Value, error) {
	a, b, err := pair("concat", arg)
	if err != nil {
		return nil, err
	}
	sa, ok := a.(ir.String)
	if !ok {
		return nil, errorf("concat", "'a' must be a string")
	}
	sb, ok := b.(ir.String)
	if !ok {
		return nil, errorf("concat", "'b' must be a string")
	}
	return sa + sb, nil
}

// to_string any → string
func stdlibToString(_ context.Context, arg ir.Value) (ir.Value, error) {
	return ir.String(valueToString(arg)), nil
}

// string_length string → int32, counted in characters
func stdlibStringLength(_ context.Context, arg ir.Value) (ir.Value, error) {
	s, ok := arg.(ir.String)
	if !ok {
		return nil, errorf("string_length", "expected a string, got %s", arg)
	}
	return ir.Int32(utf8.RuneCountInString(string(s))), nil
}

// to_json any → string
func stdlibToJSON(_ context.Context, arg ir.Value) (ir.Value, error) {
	b, err := evaluator.ValueToJSON(arg)
	if err != nil {
		return nil, errorf("to_json", "%s", err)
	}
	return ir.String(b), nil
}

// valueToString renders strings without quotes and everything else as
// written in source.
func valueToString(v ir.Value) string {
	if s, ok := v.(ir.String); ok {
		return string(s)
	}
	return v.String()
}
