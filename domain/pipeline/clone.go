package pipeline

import (
	"encoding/json"
	"fmt"
)

// cloneValue deep-copies an input value. Only JSON-shaped values can reach a node
// (decoding produces them and Node.Set rejects anything else), so the default branch
// is unreachable.
func cloneValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64, int, int64, uint32, json.Number:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	default:
		panic(fmt.Sprintf("pipeline: unsupported input value type %T", v))
	}
}

// checkValue reports whether v is a value cloneValue can copy.
func checkValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool, float64, int, int64, uint32, json.Number:
		return nil
	case map[string]any:
		for k, x := range val {
			if err := checkValue(x); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		return nil
	case []any:
		for i, x := range val {
			if err := checkValue(x); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported input value type %T", v)
	}
}

func cloneInputs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// numeric converts a decoded or patched number to float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
