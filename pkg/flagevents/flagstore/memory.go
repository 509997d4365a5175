package flagstore

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]storedEntry // env -> context hash -> entry
	seq    int
	closed bool
}

type storedEntry struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]storedEntry),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(env, contextHash string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[env] == nil {
		m.data[env] = make(map[string]storedEntry)
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	m.seq++
	m.data[env][contextHash] = storedEntry{
		data:      stored,
		sequence:  m.seq,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(env, contextHash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := m.data[env][contextHash]
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]byte, len(entry.data))
	copy(result, entry.data)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List(env string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.listLocked(env), nil
}

func (m *MemoryStore) listLocked(env string) []Info {
	entries := m.data[env]
	infos := make([]Info, 0, len(entries))
	for hash, entry := range entries {
		infos = append(infos, Info{
			Env:         env,
			ContextHash: hash,
			Sequence:    entry.sequence,
			Timestamp:   entry.timestamp,
			Size:        int64(len(entry.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos
}

// Delete implements Store.
func (m *MemoryStore) Delete(env, contextHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if entries, ok := m.data[env]; ok {
		delete(entries, contextHash)
	}
	return nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(env string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	infos := m.listLocked(env)
	for i := 0; i < len(infos)-max(keep, 0); i++ {
		delete(m.data[env], infos[i].ContextHash)
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of entries across all environments.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entries := range m.data {
		count += len(entries)
	}
	return count
}
