package graphapi

import (
	"encoding/json"
	"math"
	"strconv"
)

// Decoded JSON numbers arrive as float64 while YAML and CLI values arrive as
// Go integer types; these helpers treat them uniformly.

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	}
	return false
}

// AsInteger returns v as an int64 when it is an integral number.
func AsInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return floatInteger(float64(n))
	case float64:
		return floatInteger(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatInteger(f)
		}
	}
	return 0, false
}

func floatInteger(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	return int64(f), true
}

// AsFloat returns v as a float64 when it is a number.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := AsInteger(v); ok {
		return float64(i), true
	}
	return 0, false
}

// IsLiteral reports whether an input value is a literal rather than a link
// reference. Arrays are never literal; null and objects are.
func IsLiteral(v any) bool {
	switch v.(type) {
	case []any, []string, []int, []float64:
		return false
	}
	return true
}

// DetectParamType maps a literal to a preset parameter type name.
func DetectParamType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	}
	if isNumber(v) {
		if _, ok := AsInteger(v); ok {
			return "int"
		}
		return "float"
	}
	return "json"
}

// NodeKey renders an integer node id the way canonical graphs key nodes.
func NodeKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	}
	return v
}
