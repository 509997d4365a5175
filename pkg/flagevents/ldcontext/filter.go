package ldcontext

import (
	"fmt"

	"github.com/randalmurphal/flagevents/pkg/flagevents/attrref"
)

// FilterConfig holds the process-wide private attribute settings.
type FilterConfig struct {
	// AllAttributesPrivate redacts every attribute except the protected ones.
	AllAttributesPrivate bool

	// PrivateAttributes lists attribute references redacted from every context.
	PrivateAttributes []string
}

// protectedAttributes are never redacted.
var protectedAttributes = []string{AttrKey, AttrKind, AttrMeta, AttrAnonymous}

// legacyBuiltins are the top-level attributes of the legacy user layout.
// Their values are always strings.
var legacyBuiltins = []string{"name", "ip", "firstName", "lastName", "email", "avatar", "country"}

// Filter produces transmit-safe copies of contexts.
type Filter struct {
	allPrivate bool
	private    []string
}

// NewFilter creates a Filter.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		allPrivate: cfg.AllAttributesPrivate,
		private:    append([]string(nil), cfg.PrivateAttributes...),
	}
}

// Filter returns a redacted copy of c. The copy keeps kind and key, drops
// _meta.privateAttributes, and records in _meta.redactedAttributes the sorted
// references that were present and removed. Multi-kind contexts are filtered
// per sub-context. Legacy users are converted to a "user" context first.
//
// Filter returns nil for a nil context.
func (f *Filter) Filter(c Context) Context {
	if c == nil {
		return nil
	}
	if IsLegacyUser(c) {
		return f.filterSingle(convertLegacyUser(c))
	}
	if IsMulti(c) {
		out := Context{AttrKind: KindMulti}
		for kind, v := range c {
			if kind == AttrKind {
				continue
			}
			if sub, ok := asMap(v); ok {
				out[kind] = map[string]any(f.filterSingle(sub))
			}
		}
		return out
	}
	return f.filterSingle(c)
}

func (f *Filter) filterSingle(c map[string]any) Context {
	res := attrref.CloneExcluding(c, f.attributesToFilter(c))
	cloned := Context(res.Cloned)

	if key, ok := cloned[AttrKey]; ok && key != nil {
		cloned[AttrKey] = stringify(key)
	}

	meta, _ := cloned[AttrMeta].(map[string]any)
	if len(res.Excluded) > 0 {
		if meta == nil {
			meta = map[string]any{}
		}
		meta[MetaRedactedAttributes] = res.Excluded
	}
	if meta != nil {
		delete(meta, MetaPrivateAttributes)
		if len(meta) == 0 {
			delete(cloned, AttrMeta)
		} else {
			cloned[AttrMeta] = meta
		}
	}

	if v, ok := cloned[AttrAnonymous]; ok {
		cloned[AttrAnonymous] = truthy(v)
	}
	return cloned
}

// attributesToFilter returns the references to redact from one single-kind
// context: every attribute when all attributes are private, otherwise the
// global list plus the context's own _meta.privateAttributes. Protected
// attributes are removed from the result.
func (f *Filter) attributesToFilter(c map[string]any) []string {
	var refs []string
	if f.allPrivate {
		refs = make([]string, 0, len(c))
		for k := range c {
			refs = append(refs, k)
		}
	} else {
		refs = append(refs, f.private...)
		refs = append(refs, privateAttributesOf(c)...)
	}

	out := refs[:0]
	for _, ref := range refs {
		if !isProtected(ref) {
			out = append(out, ref)
		}
	}
	return out
}

func isProtected(ref string) bool {
	for _, p := range protectedAttributes {
		if attrref.Compare(ref, p) {
			return true
		}
	}
	return false
}

// privateAttributesOf reads _meta.privateAttributes, accepting both []string
// and decoded JSON arrays.
func privateAttributesOf(c map[string]any) []string {
	meta, ok := asMap(c[AttrMeta])
	if !ok {
		return nil
	}
	return toStrings(meta[MetaPrivateAttributes])
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// convertLegacyUser rewrites a kind-less user into a "user" context: members
// of "custom" move to the top level, built-in attributes are kept as strings,
// and privateAttributeNames become _meta.privateAttributes.
func convertLegacyUser(user Context) map[string]any {
	out := map[string]any{}
	if custom, ok := asMap(user["custom"]); ok {
		for k, v := range custom {
			out[k] = v
		}
	}
	for k, v := range user {
		switch k {
		case "custom", "privateAttributeNames", AttrMeta, AttrAnonymous:
			continue
		}
		out[k] = v
	}
	for _, name := range legacyBuiltins {
		delete(out, name)
		if v, ok := user[name]; ok && v != nil {
			out[name] = stringify(v)
		}
	}
	out[AttrKind] = KindUser
	out[AttrKey] = user[AttrKey]
	if v, ok := user[AttrAnonymous]; ok && v != nil {
		out[AttrAnonymous] = truthy(v)
	}

	var private []string
	private = append(private, privateAttributesOf(user)...)
	for _, name := range toStrings(user["privateAttributeNames"]) {
		// Legacy names are always literals, even when they look like pointers.
		if !attrref.IsLiteral(name) {
			name = attrref.LiteralToReference(name)
		}
		private = append(private, name)
	}
	if len(private) > 0 {
		out[AttrMeta] = map[string]any{MetaPrivateAttributes: private}
	}
	return out
}

// truthy mirrors loose boolean coercion for the anonymous flag.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0 && b == b
	case int:
		return b != 0
	case int64:
		return b != 0
	default:
		return fmt.Sprint(v) != ""
	}
}
