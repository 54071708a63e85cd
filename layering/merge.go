// Package layering merges JSON-like value trees (maps with string keys,
// slices and scalars) the way strata are layered on a model.
package layering

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MergeLayers composes trees ordered from strongest to weakest, returning a new
// value that keeps explicit settings from stronger layers while filling any
// missing keys from weaker ones. Only maps are merged; any other value in a
// stronger layer replaces the weaker value entirely. Keys holding nil are
// absent in the result at any depth.
func MergeLayers(layers ...any) any {
	if len(layers) == 0 {
		return nil
	}

	merged := Clone(layers[len(layers)-1])
	for i := len(layers) - 2; i >= 0; i-- {
		merged = mergeValue(layers[i], merged)
	}
	return Prune(merged)
}

// Prune removes nil-valued keys from every map inside v, in place.
func Prune(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for key, value := range typed {
			if value == nil {
				delete(typed, key)
				continue
			}
			typed[key] = Prune(value)
		}
	case []any:
		for i, value := range typed {
			typed[i] = Prune(value)
		}
	}
	return v
}

func mergeValue(strong, weak any) any {
	if strong == nil {
		return Clone(weak)
	}
	strongMap, ok := strong.(map[string]any)
	if !ok {
		return Clone(strong)
	}
	weakMap, ok := weak.(map[string]any)
	if !ok {
		return Clone(strongMap)
	}

	result := make(map[string]any, len(strongMap)+len(weakMap))
	for key, value := range weakMap {
		result[key] = Clone(value)
	}
	for key, value := range strongMap {
		if existing, found := result[key]; found {
			result[key] = mergeValue(value, existing)
			continue
		}
		if value == nil {
			// nil marks the key absent in this layer.
			continue
		}
		result[key] = Clone(value)
	}
	return result
}

// Concat appends slices ordered from weakest to strongest, dropping elements
// for which equal reports a match with an element already kept.
func Concat(layers [][]any, equal func(a, b any) bool) []any {
	if equal == nil {
		equal = Equal
	}
	var out []any
	for _, layer := range layers {
	next:
		for _, item := range layer {
			for _, kept := range out {
				if equal(kept, item) {
					continue next
				}
			}
			out = append(out, Clone(item))
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}

// Equal reports whether two trees are deeply equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Clone deep copies maps and slices inside v. Scalars are returned as-is.
func Clone(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		if typed == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = Clone(value)
		}
		return out
	case []any:
		if typed == nil {
			return []any(nil)
		}
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = Clone(value)
		}
		return out
	default:
		return v
	}
}

// Normalize converts arbitrary Go values into the JSON-like shape the merge
// helpers operate on: maps become map[string]any, slices and arrays become
// []any, pointers are dereferenced and structs go through their JSON form.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return normalizeValue(reflect.ValueOf(v))
}

func normalizeValue(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem())
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			var name string
			if key.Kind() == reflect.String {
				name = key.String()
			} else {
				name = fmt.Sprint(key.Interface())
			}
			value, err := normalizeValue(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("layering: key %q: %w", name, err)
			}
			out[name] = value
		}
		return out, nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			value, err := normalizeValue(rv.Index(i))
			if err != nil {
				return nil, fmt.Errorf("layering: index %d: %w", i, err)
			}
			out[i] = value
		}
		return out, nil
	case reflect.Struct:
		payload, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("layering: marshal %s: %w", rv.Type(), err)
		}
		var out any
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("layering: unmarshal %s: %w", rv.Type(), err)
		}
		return out, nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, fmt.Errorf("layering: unsupported value kind %s", rv.Kind())
	default:
		return rv.Interface(), nil
	}
}
