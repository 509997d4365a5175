// Package event defines the analytics event model and the summarizers that
// fold feature evaluations into per-context counters.
//
// # Events
//
// Every event embeds Base, which carries the kind tag, the creation date in
// Unix milliseconds, and either a full context or, after reduction, a map of
// context kind to key:
//
//	evt := &event.FeatureEvent{
//	    Base:        event.Base{Kind: event.KindFeature, CreationDate: nowMs, Context: c},
//	    Key:         "new-checkout",
//	    Value:       true,
//	    TrackEvents: true,
//	}
//
// # Summaries
//
// A Summarizer counts evaluations for one context. A MultiSummarizer buckets
// feature events by context hash, one Summarizer per distinct context, and
// hashes asynchronously. Summaries waits for the hashing work submitted
// before the call and then atomically starts a new generation, so each flush
// sees at most one summary per distinct context.
package event
