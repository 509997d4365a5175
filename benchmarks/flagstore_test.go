package benchmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/flagevents/pkg/flagevents/flagstore"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

func flagPayload(n int) map[string]any {
	flags := make(map[string]any, n)
	for i := 0; i < n; i++ {
		flags[fmt.Sprintf("flag-%d", i)] = map[string]any{"value": i%2 == 0, "variation": i % 2, "version": i}
	}
	return flags
}

// BenchmarkMemoryStore_Save measures in-memory cache writes.
func BenchmarkMemoryStore_Save(b *testing.B) {
	cache := flagstore.NewCache(flagstore.NewMemoryStore(), "prod")
	flags := flagPayload(50)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Save(ctx, ldcontext.Context{"kind": "user", "key": fmt.Sprint(i % 10)}, flags)
	}
}

// BenchmarkMemoryStore_Load measures in-memory cache reads.
func BenchmarkMemoryStore_Load(b *testing.B) {
	cache := flagstore.NewCache(flagstore.NewMemoryStore(), "prod")
	user := ldcontext.Context{"kind": "user", "key": "u"}
	ctx := context.Background()
	_ = cache.Save(ctx, user, flagPayload(50))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Load(ctx, user)
	}
}

// BenchmarkSQLiteStore_Save measures SQLite cache writes including pruning.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	store, err := flagstore.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	cache := flagstore.NewCache(store, "prod")
	flags := flagPayload(50)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Save(ctx, ldcontext.Context{"kind": "user", "key": fmt.Sprint(i % 10)}, flags)
	}
}

// BenchmarkSQLiteStore_Load measures SQLite cache reads.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	store, err := flagstore.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	cache := flagstore.NewCache(store, "prod")
	user := ldcontext.Context{"kind": "user", "key": "u"}
	ctx := context.Background()
	_ = cache.Save(ctx, user, flagPayload(50))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Load(ctx, user)
	}
}
