package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/flagevents/pkg/flagevents/attrref"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

func largeContext() ldcontext.Context {
	return ldcontext.Context{
		"kind":    "user",
		"key":     "user-123",
		"name":    "Red",
		"email":   "red@example.com",
		"address": map[string]any{"street": "1 Main", "city": "Oakland", "zip": "94607"},
		"groups":  []any{"beta", "staff", "admins"},
		"prefs": map[string]any{
			"theme": "dark",
			"notifications": map[string]any{
				"email": true,
				"sms":   false,
			},
		},
		"_meta": map[string]any{"privateAttributes": []any{"email", "/address/street"}},
	}
}

// BenchmarkHashContext compares the hash primitives.
func BenchmarkHashContext(b *testing.B) {
	c := largeContext()
	ctx := context.Background()
	for name, factory := range map[string]ldcontext.HasherFactory{
		"blake3": ldcontext.NewBLAKE3Hasher,
		"xxhash": ldcontext.NewXXHasher,
		"sha256": ldcontext.NewSHA256Hasher,
	} {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = ldcontext.HashContext(ctx, c, factory())
			}
		})
	}
}

// BenchmarkFilter measures redaction of one context.
func BenchmarkFilter(b *testing.B) {
	c := largeContext()
	f := ldcontext.NewFilter(ldcontext.FilterConfig{PrivateAttributes: []string{"/prefs/notifications"}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Filter(c)
	}
}

// BenchmarkCloneExcluding measures the redacting clone on its own.
func BenchmarkCloneExcluding(b *testing.B) {
	c := largeContext()
	refs := []string{"email", "/address/street", "/prefs/notifications/sms"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = attrref.CloneExcluding(c, refs)
	}
}
