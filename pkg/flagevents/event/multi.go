package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
	"github.com/randalmurphal/flagevents/pkg/flagevents/observability"
)

// bucket is one registry entry: the summarizer for a context and the
// original, unfiltered context it was created for.
type bucket struct {
	summarizer *Summarizer
	context    ldcontext.Context
}

// MultiSummarizer fans feature events out to one Summarizer per distinct
// context, keyed by context hash.
//
// SummarizeEvent returns immediately; hashing runs on its own goroutine and
// is tracked until it completes. Summaries waits only for work submitted
// before it was called.
type MultiSummarizer struct {
	filter *ldcontext.Filter
	hasher ldcontext.HasherFactory
	logger *slog.Logger

	mu       sync.Mutex
	registry map[string]*bucket
	order    []string
	pending  map[uint64]chan struct{}
	nextTask uint64
}

// MultiOption configures a MultiSummarizer.
type MultiOption func(*MultiSummarizer)

// WithHasher sets the hash primitive used to bucket contexts.
// The default is ldcontext.NewBLAKE3Hasher.
func WithHasher(h ldcontext.HasherFactory) MultiOption {
	return func(m *MultiSummarizer) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *slog.Logger) MultiOption {
	return func(m *MultiSummarizer) {
		m.logger = l
	}
}

// NewMultiSummarizer creates a MultiSummarizer that redacts summary contexts
// with filter.
func NewMultiSummarizer(filter *ldcontext.Filter, opts ...MultiOption) *MultiSummarizer {
	m := &MultiSummarizer{
		filter:   filter,
		hasher:   ldcontext.NewBLAKE3Hasher,
		registry: make(map[string]*bucket),
		pending:  make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.filter == nil {
		m.filter = ldcontext.NewFilter(ldcontext.FilterConfig{})
	}
	return m
}

// SummarizeEvent schedules a feature event for summarization. Other kinds
// are ignored. Events whose context cannot be hashed are dropped from
// summaries silently.
func (m *MultiSummarizer) SummarizeEvent(e Event) {
	fe, ok := e.(*FeatureEvent)
	if !ok || fe.Kind != KindFeature {
		return
	}

	done := make(chan struct{})
	m.mu.Lock()
	id := m.nextTask
	m.nextTask++
	m.pending[id] = done
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.pending, id)
			m.mu.Unlock()
			close(done)
		}()

		hash, ok := ldcontext.HashContext(context.Background(), fe.Context, m.hasher())
		if !ok {
			observability.LogSummaryDropped(m.logger, fe.Key)
			return
		}

		// Lookup and counting happen under the same lock as the registry
		// swap so a count never lands in an already-read generation.
		m.mu.Lock()
		defer m.mu.Unlock()
		b, ok := m.registry[hash]
		if !ok {
			b = &bucket{summarizer: NewSummarizer(), context: fe.Context}
			m.registry[hash] = b
			m.order = append(m.order, hash)
		}
		b.summarizer.SummarizeEvent(fe)
	}()
}

// Summaries waits for every summarization submitted before the call, then
// swaps out the registry and returns one summary per distinct context, in
// first-seen order, each carrying the filtered context.
//
// If ctx ends while waiting, nothing is swapped and ctx.Err() is returned.
func (m *MultiSummarizer) Summaries(ctx context.Context) ([]*SummaryEvent, error) {
	m.mu.Lock()
	waits := make([]chan struct{}, 0, len(m.pending))
	for _, done := range m.pending {
		waits = append(waits, done)
	}
	m.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	registry, order := m.registry, m.order
	m.registry = make(map[string]*bucket)
	m.order = nil
	m.mu.Unlock()

	out := make([]*SummaryEvent, 0, len(order))
	for _, hash := range order {
		b := registry[hash]
		summary := b.summarizer.Summary()
		summary.Context = m.filter.Filter(b.context)
		out = append(out, summary)
	}
	return out, nil
}

// Pending returns the number of summarizations still hashing.
func (m *MultiSummarizer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
