// Package jsondoc implements Strata's JSON document primitive (spec.md
// §4.8): one substrate key carries one parsed document, and path
// operations decompose into read-the-doc, apply-patch-in-context,
// write-the-doc.
//
// path.go is adapted from docdb/internal/docdb/path.go's JSON
// Pointer-like segment parser and Get/Set/Delete/Insert traversal,
// retargeted from interface{}/map[string]interface{}/[]interface{} onto
// Strata's closed value.Value union (value.Object/value.Array) since
// Strata has no untyped-JSON layer above the substrate.
package jsondoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/value"
)

// ParsePath parses a JSON-Pointer-style path ("/a/b/0") into segments,
// unescaping "~1" -> "/" and "~0" -> "~" per RFC 6901.
func ParsePath(path string) ([]string, error) {
	if path == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, errors.InvalidInput("path must start with '/'")
	}
	path = path[1:]
	if path == "" {
		return []string{}, nil
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		segments[i] = seg
	}
	return segments, nil
}

// GetValue retrieves the value at path within doc.
func GetValue(doc value.Value, path []string) (value.Value, error) {
	current := doc
	for i, segment := range path {
		switch v := current.(type) {
		case value.Object:
			val, exists := v[segment]
			if !exists {
				return nil, pathErr(path, i, "not found")
			}
			current = val
		case value.Array:
			index, err := strconv.Atoi(segment)
			if err != nil {
				return nil, pathErr(path, i, "invalid array index")
			}
			if index < 0 || index >= len(v) {
				return nil, pathErr(path, i, "array index out of bounds")
			}
			current = v[index]
		default:
			return nil, pathErr(path, i, "value is not an object or array")
		}
	}
	return current, nil
}

// SetValue sets a value at path, creating intermediate objects as needed,
// and returns the (possibly new) document root. doc must be a
// value.Object, or nil to start a fresh document.
func SetValue(doc value.Value, path []string, v value.Value) (value.Value, error) {
	if len(path) == 0 {
		return nil, errors.InvalidInput("path must name at least one segment")
	}
	root, ok := doc.(value.Object)
	if !ok {
		if doc == nil {
			root = value.Object{}
		} else {
			return nil, errors.InvalidInput("document root is not an object")
		}
	}

	current := root
	for i := 0; i < len(path)-1; i++ {
		segment := path[i]
		val, exists := current[segment]
		if !exists {
			next := value.Object{}
			current[segment] = next
			current = next
			continue
		}
		switch existing := val.(type) {
		case value.Object:
			current = existing
		case value.Array:
			return nil, pathErr(path, i, "cannot set a key on an array")
		default:
			next := value.Object{}
			current[segment] = next
			current = next
		}
	}
	current[path[len(path)-1]] = v
	return root, nil
}

// DeleteValue removes the value at path, returning the document root.
// Only object-keyed deletion is supported, matching the teacher's
// explicit "array deletion not supported" limitation.
func DeleteValue(doc value.Value, path []string) (value.Value, error) {
	if len(path) == 0 {
		return nil, errors.InvalidInput("path must name at least one segment")
	}
	root, ok := doc.(value.Object)
	if !ok {
		return nil, errors.InvalidInput("document root is not an object")
	}

	current := root
	for i := 0; i < len(path)-1; i++ {
		segment := path[i]
		val, exists := current[segment]
		if !exists {
			return nil, pathErr(path, i, "not found")
		}
		switch existing := val.(type) {
		case value.Object:
			current = existing
		case value.Array:
			return nil, pathErr(path, i, "array element deletion not supported")
		default:
			return nil, pathErr(path, i, "value is not an object or array")
		}
	}
	final := path[len(path)-1]
	if _, exists := current[final]; !exists {
		return nil, pathErr(path, len(path)-1, "not found")
	}
	delete(current, final)
	return root, nil
}

// InsertValue inserts v into the array at path, at index, returning the
// document root.
func InsertValue(doc value.Value, path []string, index int, v value.Value) (value.Value, error) {
	if len(path) == 0 {
		return nil, errors.InvalidInput("path must name at least one segment")
	}
	root, ok := doc.(value.Object)
	if !ok {
		return nil, errors.InvalidInput("document root is not an object")
	}

	current := root
	for i := 0; i < len(path)-1; i++ {
		segment := path[i]
		val, exists := current[segment]
		if !exists {
			return nil, pathErr(path, i, "not found")
		}
		obj, ok := val.(value.Object)
		if !ok {
			return nil, pathErr(path, i, "cannot traverse non-object")
		}
		current = obj
	}

	final := path[len(path)-1]
	val, exists := current[final]
	if !exists {
		return nil, pathErr(path, len(path)-1, "not found")
	}
	arr, ok := val.(value.Array)
	if !ok {
		return nil, pathErr(path, len(path)-1, "not an array")
	}
	if index < 0 || index > len(arr) {
		return nil, pathErr(path, len(path)-1, "insert index out of bounds")
	}

	next := make(value.Array, 0, len(arr)+1)
	next = append(next, arr[:index]...)
	next = append(next, v)
	next = append(next, arr[index:]...)
	current[final] = next
	return root, nil
}

func pathErr(path []string, seg int, reason string) error {
	return errors.InvalidInput(fmt.Sprintf("path %q segment %d: %s", "/"+strings.Join(path, "/"), seg, reason))
}
