package evaluator

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/thomasrohde/morph/pkg/ir"
)

// ValueToJSON marshals a value to JSON bytes.
// Tuples with only unnamed fields become arrays; other tuples become
// objects that keep field order, with unnamed fields keyed by position.
func ValueToJSON(v ir.Value) ([]byte, error) {
	return json.Marshal(valueToRaw(v))
}

func valueToRaw(v ir.Value) any {
	switch val := v.(type) {
	case nil, ir.Unit:
		return nil
	case ir.Bool:
		return bool(val)
	case ir.Int32:
		return int32(val)
	case ir.Int64:
		return int64(val)
	case ir.Float64:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return val.String()
		}
		return f
	case ir.String:
		return string(val)
	case ir.Tuple:
		if len(val.Fields.Named) == 0 {
			items := make([]any, len(val.Fields.Unnamed))
			for i, item := range val.Fields.Unnamed {
				items[i] = valueToRaw(item)
			}
			return items
		}
		return &orderedTuple{fields: val}
	case ir.Variant:
		out := map[string]any{"variant": val.Name}
		if val.Value != nil {
			out["value"] = valueToRaw(val.Value)
		}
		return out
	case ir.Multiset:
		items := make([]any, len(val.Values))
		for i, item := range val.Values {
			items[i] = valueToRaw(item)
		}
		return items
	}
	return v.String()
}

// orderedTuple preserves field order in JSON output.
type orderedTuple struct {
	fields ir.Tuple
}

func (o *orderedTuple) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	i := 0
	for name, value := range o.fields.Fields.All() {
		if i > 0 {
			buf = append(buf, ',')
		}
		if name == "" {
			name = strconv.Itoa(i)
		}
		keyBytes, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')

		valBytes, err := json.Marshal(valueToRaw(value))
		if err != nil {
			return nil, err
		}
		buf = append(buf, valBytes...)
		i++
	}
	buf = append(buf, '}')
	return buf, nil
}
