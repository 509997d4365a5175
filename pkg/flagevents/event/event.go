package event

import (
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
)

// Event kinds.
const (
	KindIdentify = "identify"
	KindFeature  = "feature"
	KindCustom   = "custom"
	KindDebug    = "debug"
	KindSummary  = "summary"
)

// Event is any analytics event. Implementations embed Base.
type Event interface {
	// Header returns the shared fields. Mutating the result mutates the event.
	Header() *Base

	// Clone returns a shallow copy suitable for rewriting output fields.
	Clone() Event
}

// Base holds the fields shared by every event.
type Base struct {
	Kind         string            `json:"kind"`
	CreationDate int64             `json:"creationDate,omitempty"`
	Context      ldcontext.Context `json:"context,omitempty"`
	ContextKeys  map[string]string `json:"contextKeys,omitempty"`
}

// Header returns b.
func (b *Base) Header() *Base { return b }

// IdentifyEvent announces a context.
type IdentifyEvent struct {
	Base
}

// NewIdentifyEvent creates an identify event for c.
func NewIdentifyEvent(c ldcontext.Context, creationDate int64) *IdentifyEvent {
	return &IdentifyEvent{Base: Base{Kind: KindIdentify, CreationDate: creationDate, Context: c}}
}

// Clone returns a shallow copy.
func (e *IdentifyEvent) Clone() Event {
	dup := *e
	return &dup
}

// FeatureEvent records one flag evaluation. It doubles as the debug event
// when Kind is KindDebug.
type FeatureEvent struct {
	Base
	Key                  string `json:"key"`
	Value                any    `json:"value"`
	Variation            *int   `json:"variation,omitempty"`
	Default              any    `json:"default"`
	Version              *int   `json:"version,omitempty"`
	TrackEvents          bool   `json:"trackEvents,omitempty"`
	DebugEventsUntilDate *int64 `json:"debugEventsUntilDate,omitempty"`
	Reason               any    `json:"reason,omitempty"`
}

// Clone returns a shallow copy.
func (e *FeatureEvent) Clone() Event {
	dup := *e
	return &dup
}

// NewDebugEvent derives the debug copy of a feature event: same payload,
// kind "debug", without the tracking fields.
func NewDebugEvent(e *FeatureEvent) *FeatureEvent {
	dup := *e
	dup.Kind = KindDebug
	dup.TrackEvents = false
	dup.DebugEventsUntilDate = nil
	return &dup
}

// CustomEvent is a host-tracked custom event.
type CustomEvent struct {
	Base
	Key         string   `json:"key"`
	Data        any      `json:"data,omitempty"`
	MetricValue *float64 `json:"metricValue,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// NewCustomEvent creates a custom event.
func NewCustomEvent(key string, c ldcontext.Context, data any, creationDate int64) *CustomEvent {
	return &CustomEvent{
		Base: Base{Kind: KindCustom, CreationDate: creationDate, Context: c},
		Key:  key,
		Data: data,
	}
}

// Clone returns a shallow copy.
func (e *CustomEvent) Clone() Event {
	dup := *e
	return &dup
}

// Counter counts evaluations of one flag that produced the same
// (variation, version) pair.
type Counter struct {
	Value     any  `json:"value"`
	Count     int  `json:"count"`
	Variation *int `json:"variation,omitempty"`
	Version   *int `json:"version,omitempty"`

	// Unknown is set when the flag had no version, meaning it was not found.
	Unknown bool `json:"unknown,omitempty"`
}

// FlagSummary aggregates the evaluations of one flag.
type FlagSummary struct {
	Default      any       `json:"default"`
	Counters     []Counter `json:"counters"`
	ContextKinds []string  `json:"contextKinds"`
}

// SummaryEvent reports the counters gathered for one context during a flush
// window. Context holds the filtered context.
type SummaryEvent struct {
	Base
	StartDate int64                   `json:"startDate"`
	EndDate   int64                   `json:"endDate"`
	Features  map[string]*FlagSummary `json:"features"`
}

// Clone returns a shallow copy.
func (e *SummaryEvent) Clone() Event {
	dup := *e
	return &dup
}

// Empty reports whether the summary holds no counters.
func (e *SummaryEvent) Empty() bool {
	return len(e.Features) == 0
}
