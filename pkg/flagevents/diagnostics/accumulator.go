// Package diagnostics collects delivery statistics and reports them to the
// collector as diagnostic events.
package diagnostics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Accumulator receives statistics from the event processor.
type Accumulator interface {
	IncrementDroppedEvents()
	SetEventsInLastBatch(n int)
}

// Collector is an Accumulator whose statistics can be read and restarted.
type Collector interface {
	Accumulator

	// Snapshot returns the statistics gathered since DataSinceDate.
	Snapshot() Stats

	// Reset clears the statistics and starts a new period at sinceMs.
	Reset(sinceMs int64)
}

// Stats is one reporting period's statistics.
type Stats struct {
	DataSinceDate     int64
	DroppedEvents     int
	EventsInLastBatch int
}

// MemoryAccumulator is an in-memory Collector. It is safe for concurrent use.
type MemoryAccumulator struct {
	mu    sync.Mutex
	stats Stats
}

var _ Collector = (*MemoryAccumulator)(nil)

// NewAccumulator creates a MemoryAccumulator whose period starts at startMs.
func NewAccumulator(startMs int64) *MemoryAccumulator {
	return &MemoryAccumulator{stats: Stats{DataSinceDate: startMs}}
}

// IncrementDroppedEvents counts one event dropped for lack of capacity.
func (a *MemoryAccumulator) IncrementDroppedEvents() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.DroppedEvents++
}

// SetEventsInLastBatch records the size of the latest batch.
func (a *MemoryAccumulator) SetEventsInLastBatch(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.EventsInLastBatch = n
}

// Snapshot returns the current statistics.
func (a *MemoryAccumulator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset starts a new period.
func (a *MemoryAccumulator) Reset(sinceMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = Stats{DataSinceDate: sinceMs}
}

const (
	ns        = "flagevents"
	subsystem = "events"
)

// PromAccumulator is a MemoryAccumulator that also exports its statistics
// as Prometheus metrics. The Prometheus counters are never reset.
type PromAccumulator struct {
	*MemoryAccumulator

	DroppedEvents     prometheus.Counter
	EventsInLastBatch prometheus.Gauge
}

var _ Collector = (*PromAccumulator)(nil)

// NewPromAccumulator creates a PromAccumulator registered with reg.
func NewPromAccumulator(reg prometheus.Registerer, startMs int64) *PromAccumulator {
	return &PromAccumulator{
		MemoryAccumulator: NewAccumulator(startMs),
		DroppedEvents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dropped_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of analytics events dropped because the outbox was full.",
		}),
		EventsInLastBatch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "last_batch_size", Namespace: ns, Subsystem: subsystem,
			Help: "The number of events in the most recently flushed batch.",
		}),
	}
}

// IncrementDroppedEvents counts one dropped event.
func (a *PromAccumulator) IncrementDroppedEvents() {
	a.MemoryAccumulator.IncrementDroppedEvents()
	a.DroppedEvents.Inc()
}

// SetEventsInLastBatch records the size of the latest batch.
func (a *PromAccumulator) SetEventsInLastBatch(n int) {
	a.MemoryAccumulator.SetEventsInLastBatch(n)
	a.EventsInLastBatch.Set(float64(n))
}
