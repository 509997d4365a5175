// Package ldcontext models evaluation contexts and provides the two
// privacy-relevant operations the event pipeline needs: a content hash used
// to bucket summaries, and a filter that redacts private attributes before a
// context leaves the process.
//
// A Context is an attribute tree. Its "kind" attribute selects the shape:
//
//   - absent: a legacy user; treated as kind "user" with the legacy layout
//   - "multi": every other top-level attribute is a sub-context keyed by kind
//   - anything else: a single-kind context with a required "key"
package ldcontext

import (
	"fmt"
	"sort"

	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
)

// Context is an evaluation context as an attribute tree.
type Context map[string]any

// Reserved attribute names.
const (
	AttrKey       = "key"
	AttrKind      = "kind"
	AttrMeta      = "_meta"
	AttrAnonymous = "anonymous"

	MetaPrivateAttributes  = "privateAttributes"
	MetaRedactedAttributes = "redactedAttributes"

	KindUser  = "user"
	KindMulti = "multi"
)

// IsLegacyUser reports whether c has no kind attribute.
func IsLegacyUser(c Context) bool {
	v, ok := c[AttrKind]
	return !ok || v == nil
}

// IsMulti reports whether c is a multi-kind context.
func IsMulti(c Context) bool {
	kind, _ := c[AttrKind].(string)
	return kind == KindMulti
}

// Validate checks the structural requirements of c: kinds are made of
// letters, digits, '.', '_' and '-' and are not "kind"; keys are non-empty
// strings; a multi-kind context holds at least one valid sub-context. A
// legacy user only needs a key.
func Validate(c Context) error {
	if c == nil {
		return feerrors.InvalidContext("context is nil")
	}
	if IsLegacyUser(c) {
		if v, ok := c[AttrKey]; !ok || v == nil {
			return feerrors.InvalidContext("legacy user has no key")
		}
		return nil
	}

	kind, ok := c[AttrKind].(string)
	if !ok || !validKind(kind) {
		return feerrors.InvalidContext(fmt.Sprintf("invalid context kind %v", c[AttrKind]))
	}
	if kind != KindMulti {
		if !validKey(c[AttrKey]) {
			return feerrors.InvalidContext(fmt.Sprintf("context of kind %q has no valid key", kind))
		}
		return nil
	}

	subKinds := 0
	for k, v := range c {
		if k == AttrKind {
			continue
		}
		subKinds++
		if !validKind(k) || k == KindMulti {
			return feerrors.InvalidContext(fmt.Sprintf("invalid context kind %q in multi-kind context", k))
		}
		sub, ok := asMap(v)
		if !ok || !validKey(sub[AttrKey]) {
			return feerrors.InvalidContext(fmt.Sprintf("sub-context %q has no valid key", k))
		}
	}
	if subKinds == 0 {
		return feerrors.InvalidContext("multi-kind context has no sub-contexts")
	}
	return nil
}

func validKind(kind string) bool {
	if kind == "" || kind == AttrKind {
		return false
	}
	for _, r := range kind {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func validKey(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// Kinds returns the kinds c describes, sorted. A legacy user yields ["user"].
func Kinds(c Context) []string {
	if c == nil {
		return nil
	}
	if IsLegacyUser(c) {
		return []string{KindUser}
	}
	if !IsMulti(c) {
		kind, _ := c[AttrKind].(string)
		return []string{kind}
	}
	kinds := make([]string, 0, len(c)-1)
	for k := range c {
		if k != AttrKind {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// Keys returns the kind-to-key map used in place of a full context by
// events that must not carry one.
func Keys(c Context) map[string]string {
	if c == nil {
		return nil
	}
	keys := make(map[string]string)
	if IsLegacyUser(c) {
		keys[KindUser] = stringify(c[AttrKey])
		return keys
	}
	kind, _ := c[AttrKind].(string)
	switch kind {
	case "":
	case KindMulti:
		for k, v := range c {
			if k == AttrKind {
				continue
			}
			if sub, ok := asMap(v); ok && sub[AttrKey] != nil {
				keys[k] = stringify(sub[AttrKey])
			}
		}
	default:
		keys[kind] = stringify(c[AttrKey])
	}
	return keys
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// asMap accepts both Context and plain maps for nested sub-contexts.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case Context:
		return m, m != nil
	}
	return nil, false
}
