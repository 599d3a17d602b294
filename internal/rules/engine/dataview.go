package engine

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// DataView is a read-only view over a request payload. Every accessor returns
// a copy, so handlers cannot mutate the request they are judging.
type DataView struct {
	data map[string]any
}

// NewDataView wraps payload without copying it; callers must not mutate it afterwards.
func NewDataView(payload map[string]any) DataView {
	return DataView{data: payload}
}

// Get resolves a dotted path ("profile.bio", "photos.0.url") and returns a deep copy.
func (v DataView) Get(path string) (any, bool) {
	val, ok := v.lookup(path)
	if !ok {
		return nil, false
	}
	return deepCopy(val), true
}

// Has reports whether path resolves to a non-null value.
func (v DataView) Has(path string) bool {
	val, ok := v.lookup(path)
	return ok && val != nil
}

// String returns the string at path.
func (v DataView) String(path string) (string, bool) {
	val, ok := v.lookup(path)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Number returns the numeric value at path.
func (v DataView) Number(path string) (float64, bool) {
	val, ok := v.lookup(path)
	if !ok {
		return 0, false
	}
	return toFloat(val)
}

// Bool returns the boolean at path.
func (v DataView) Bool(path string) (bool, bool) {
	val, ok := v.lookup(path)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Strings returns the string elements of the array at path.
func (v DataView) Strings(path string) ([]string, bool) {
	val, ok := v.lookup(path)
	if !ok {
		return nil, false
	}
	switch t := val.(type) {
	case []string:
		return slices.Clone(t), true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Keys returns the top-level keys in sorted order.
func (v DataView) Keys() []string {
	return slices.Sorted(maps.Keys(v.data))
}

// WalkStrings visits every string leaf in deterministic (sorted key, index) order.
func (v DataView) WalkStrings(fn func(path, value string)) {
	walk("", v.data, fn)
}

func walk(prefix string, val any, fn func(path, value string)) {
	switch t := val.(type) {
	case string:
		fn(prefix, t)
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			walk(join(prefix, k), t[k], fn)
		}
	case []any:
		for i, e := range t {
			walk(join(prefix, strconv.Itoa(i)), e, fn)
		}
	case []string:
		for i, e := range t {
			fn(join(prefix, strconv.Itoa(i)), e)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (v DataView) lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = v.data
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
