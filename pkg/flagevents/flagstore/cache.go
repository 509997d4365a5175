package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

// Version is the current entry format version.
const Version = 1

// DefaultMaxContexts is how many contexts a Cache keeps per environment.
const DefaultMaxContexts = 5

// Entry is the persisted envelope around a flag payload.
type Entry struct {
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Flags     json.RawMessage `json:"flags"`
}

// Cache stores raw flag maps per context on top of a Store.
type Cache struct {
	store       Store
	env         string
	hasher      ldcontext.HasherFactory
	maxContexts int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithHasher sets the hash primitive used to key contexts.
func WithHasher(h ldcontext.HasherFactory) CacheOption {
	return func(c *Cache) {
		if h != nil {
			c.hasher = h
		}
	}
}

// WithMaxContexts bounds how many contexts are kept. Zero or less keeps
// every context.
func WithMaxContexts(n int) CacheOption {
	return func(c *Cache) { c.maxContexts = n }
}

// NewCache creates a Cache for env.
func NewCache(store Store, env string, opts ...CacheOption) *Cache {
	c := &Cache{
		store:       store,
		env:         env,
		hasher:      ldcontext.NewBLAKE3Hasher,
		maxContexts: DefaultMaxContexts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(ctx context.Context, lc ldcontext.Context) (string, error) {
	hash, ok := ldcontext.HashContext(ctx, lc, c.hasher())
	if !ok {
		return "", feerrors.InvalidContext("context cannot be used as a cache key")
	}
	return hash, nil
}

// Save stores flags for lc and evicts the least recently saved contexts
// beyond the configured maximum.
func (c *Cache) Save(ctx context.Context, lc ldcontext.Context, flags map[string]any) error {
	hash, err := c.key(ctx, lc)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	data, err := json.Marshal(Entry{Version: Version, Timestamp: time.Now().UTC(), Flags: raw})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := c.store.Save(c.env, hash, data); err != nil {
		return err
	}
	if c.maxContexts > 0 {
		return c.store.Prune(c.env, c.maxContexts)
	}
	return nil
}

// Load returns the cached flags for lc. The boolean is false when nothing is
// cached. A corrupt entry is reported as a data fetch error.
func (c *Cache) Load(ctx context.Context, lc ldcontext.Context) (map[string]any, bool, error) {
	hash, err := c.key(ctx, lc)
	if err != nil {
		return nil, false, err
	}
	data, err := c.store.Load(c.env, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, feerrors.DataFetch("decode cached flags", err)
	}
	if entry.Version != Version {
		return nil, false, feerrors.DataFetch(fmt.Sprintf("unsupported cache entry version %d", entry.Version), nil)
	}
	var flags map[string]any
	if err := json.Unmarshal(entry.Flags, &flags); err != nil {
		return nil, false, feerrors.DataFetch("decode cached flags", err)
	}
	return flags, true, nil
}
