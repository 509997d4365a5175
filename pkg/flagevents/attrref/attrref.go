// Package attrref addresses locations inside context attribute trees and
// produces redacted copies of those trees.
//
// A reference is either a literal, which names one top-level attribute
// verbatim, or a pointer, which starts with "/" and lists slash-delimited path
// segments. Inside a pointer segment "~1" stands for "/" and "~0" for "~".
// A literal and a single-segment pointer naming the same attribute are
// equivalent:
//
//	attrref.Compare("name", "/name")          // true
//	attrref.Compare("a/b", "/a~1b")           // true
//	attrref.Compare("/address/city", "city")  // false
package attrref

import (
	"reflect"
	"sort"
	"strings"
)

// Root is the pointer to the root of a tree. It can never be excluded.
const Root = "/"

// IsLiteral reports whether ref is a literal (non-pointer) reference.
func IsLiteral(ref string) bool {
	return !strings.HasPrefix(ref, "/")
}

// Components returns the unescaped path segments of ref. A literal yields a
// single segment holding the literal itself.
func Components(ref string) []string {
	if IsLiteral(ref) {
		return []string{ref}
	}
	parts := strings.Split(ref[1:], "/")
	for i, part := range parts {
		if strings.Contains(part, "~") {
			parts[i] = unescape(part)
		}
	}
	return parts
}

func unescape(segment string) string {
	return strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
}

func escape(segment string) string {
	return strings.ReplaceAll(strings.ReplaceAll(segment, "~", "~0"), "/", "~1")
}

// LiteralToReference converts a literal attribute name into the equivalent
// pointer.
func LiteralToReference(literal string) string {
	return "/" + escape(literal)
}

// Compare reports whether a and b denote the same location.
func Compare(a, b string) bool {
	aLiteral, bLiteral := IsLiteral(a), IsLiteral(b)
	switch {
	case aLiteral && bLiteral:
		return a == b
	case aLiteral:
		parts := Components(b)
		return len(parts) == 1 && parts[0] == a
	case bLiteral:
		parts := Components(a)
		return len(parts) == 1 && parts[0] == b
	default:
		return a == b
	}
}

// Result is the output of CloneExcluding.
type Result struct {
	// Cloned is the deep copy with excluded locations omitted.
	Cloned map[string]any

	// Excluded lists the pointers that matched an existing location,
	// sorted lexicographically.
	Excluded []string
}

// workItem is one pending copy in the CloneExcluding worklist.
type workItem struct {
	key     string
	ptr     string
	source  map[string]any
	parent  map[string]any
	visited []uintptr
}

// CloneExcluding deep-copies target, omitting every location matched by one of
// refs. The root can never be excluded.
//
// Traversal is iterative. Each branch carries the identities of the objects
// above it; an object that already appears on its own branch is not copied,
// so cyclic trees are truncated rather than looping. Two sibling branches that
// share an object are copied independently.
//
// Arrays are copied shallowly and are never descended into, so references
// into array elements are ignored.
func CloneExcluding(target map[string]any, refs []string) Result {
	cloned := make(map[string]any, len(target))
	excluded := []string{}
	if target == nil {
		return Result{Cloned: cloned, Excluded: excluded}
	}

	rootVisited := []uintptr{identity(target)}
	stack := make([]workItem, 0, len(target))
	for key := range target {
		stack = append(stack, workItem{
			key:     key,
			ptr:     LiteralToReference(key),
			source:  target,
			parent:  cloned,
			visited: rootVisited,
		})
	}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if matchesAny(refs, item.ptr) {
			excluded = append(excluded, item.ptr)
			continue
		}

		switch value := normalize(item.source[item.key]).(type) {
		case map[string]any:
			if value == nil {
				item.parent[item.key] = value
				continue
			}
			id := identity(value)
			if containsID(item.visited, id) {
				continue
			}
			child := make(map[string]any, len(value))
			item.parent[item.key] = child

			visited := make([]uintptr, len(item.visited), len(item.visited)+1)
			copy(visited, item.visited)
			visited = append(visited, id)

			for key := range value {
				stack = append(stack, workItem{
					key:     key,
					ptr:     item.ptr + LiteralToReference(key),
					source:  value,
					parent:  child,
					visited: visited,
				})
			}
		case []any:
			if value == nil {
				item.parent[item.key] = value
				continue
			}
			dup := make([]any, len(value))
			copy(dup, value)
			item.parent[item.key] = dup
		default:
			item.parent[item.key] = value
		}
	}

	sort.Strings(excluded)
	return Result{Cloned: cloned, Excluded: excluded}
}

func matchesAny(refs []string, ptr string) bool {
	for _, ref := range refs {
		if ref == Root {
			continue
		}
		if Compare(ref, ptr) {
			return true
		}
	}
	return false
}

var (
	objectType = reflect.TypeOf(map[string]any(nil))
	arrayType  = reflect.TypeOf([]any(nil))
)

// normalize converts named object and array types to their plain forms so
// that, for example, a nested Context is descended like any other object.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type() != objectType && rv.Type().ConvertibleTo(objectType) {
			return rv.Convert(objectType).Interface()
		}
	case reflect.Slice:
		if rv.Type() != arrayType && rv.Type().ConvertibleTo(arrayType) {
			return rv.Convert(arrayType).Interface()
		}
	}
	return v
}

func identity(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}

func containsID(ids []uintptr, id uintptr) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
