// Package paths implements dot-separated path access into nested
// map[string]any data. It replaces unchecked dynamic traversal with an
// explicit accessor: a missing or mistyped path segment resolves to
// (nil, false) on reads and an error on writes, never a panic.
package paths

import (
	"fmt"
	"strings"
)

// Get resolves a dot-separated path against data. The second return value
// reports whether the full path existed.
func Get(data map[string]any, path string) (any, bool) {
	if path == "" || data == nil {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = data
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes value at a dot-separated path into data, creating intermediate
// maps as needed. It fails if an intermediate segment exists but is not a
// map.
func Set(data map[string]any, path string, value any) error {
	if data == nil {
		return fmt.Errorf("nil target")
	}
	if path == "" {
		return fmt.Errorf("empty path")
	}

	segments := strings.Split(path, ".")
	current := data
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg]
		if !ok {
			child := make(map[string]any)
			current[seg] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q is not a map", seg)
		}
		current = child
	}
	current[segments[len(segments)-1]] = value
	return nil
}

// Truthy reports whether a resolved value counts as true for condition
// evaluation. nil, false, zero numbers and empty strings/collections are
// falsy; everything else is truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}
