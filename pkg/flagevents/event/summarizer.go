package event

import (
	"sort"
	"sync"

	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

// counterKey identifies one counter. Absent variation or version are kept
// distinct from zero.
type counterKey struct {
	flag         string
	variation    int
	hasVariation bool
	version      int
	hasVersion   bool
}

type flagState struct {
	defaultValue any
	kinds        map[string]struct{}
	counters     []*Counter
}

// Summarizer accumulates evaluation counters for a single context.
// It is safe for concurrent use.
type Summarizer struct {
	mu        sync.Mutex
	startDate int64
	endDate   int64
	flags     map[string]*flagState
	order     []string
	counters  map[counterKey]*Counter
}

// NewSummarizer creates an empty Summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{
		flags:    make(map[string]*flagState),
		counters: make(map[counterKey]*Counter),
	}
}

// SummarizeEvent counts a feature event. Other kinds are ignored.
func (s *Summarizer) SummarizeEvent(e *FeatureEvent) {
	if e == nil || e.Kind != KindFeature {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startDate == 0 || e.CreationDate < s.startDate {
		s.startDate = e.CreationDate
	}
	if e.CreationDate > s.endDate {
		s.endDate = e.CreationDate
	}

	flag, ok := s.flags[e.Key]
	if !ok {
		flag = &flagState{defaultValue: e.Default, kinds: make(map[string]struct{})}
		s.flags[e.Key] = flag
		s.order = append(s.order, e.Key)
	}
	for _, kind := range ldcontext.Kinds(e.Context) {
		flag.kinds[kind] = struct{}{}
	}

	key := counterKey{flag: e.Key}
	if e.Variation != nil {
		key.variation, key.hasVariation = *e.Variation, true
	}
	if e.Version != nil {
		key.version, key.hasVersion = *e.Version, true
	}

	if c, ok := s.counters[key]; ok {
		c.Count++
		c.Value = e.Value
		return
	}

	c := &Counter{Value: e.Value, Count: 1}
	if key.hasVariation {
		v := key.variation
		c.Variation = &v
	}
	if key.hasVersion {
		v := key.version
		c.Version = &v
	} else {
		c.Unknown = true
	}
	s.counters[key] = c
	flag.counters = append(flag.counters, c)
}

// Summary returns the counters gathered since the previous call and resets
// the summarizer. The result has no features when nothing was counted.
func (s *Summarizer) Summary() *SummaryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &SummaryEvent{
		Base:      Base{Kind: KindSummary},
		StartDate: s.startDate,
		EndDate:   s.endDate,
		Features:  make(map[string]*FlagSummary, len(s.flags)),
	}
	for _, key := range s.order {
		flag := s.flags[key]
		summary := &FlagSummary{
			Default:      flag.defaultValue,
			Counters:     make([]Counter, 0, len(flag.counters)),
			ContextKinds: make([]string, 0, len(flag.kinds)),
		}
		for _, c := range flag.counters {
			summary.Counters = append(summary.Counters, *c)
		}
		for kind := range flag.kinds {
			summary.ContextKinds = append(summary.ContextKinds, kind)
		}
		sort.Strings(summary.ContextKinds)
		out.Features[key] = summary
	}

	s.startDate, s.endDate = 0, 0
	s.flags = make(map[string]*flagState)
	s.order = nil
	s.counters = make(map[counterKey]*Counter)
	return out
}
