/*
Package flagevents delivers feature-flag analytics events to a collector.

# Overview

A Processor receives flag evaluations, identify calls and custom events
from the host SDK. Every feature event is counted into a per-context
summary. Events that the flag or the host asked to track in full are
queued, with their contexts redacted, in a bounded outbox. On each flush
the outbox and the summaries are posted to the events URL as one JSON
batch.

	p := flagevents.NewProcessor(flagevents.Config{
	    EventsURL:            "https://events.example.com/bulk",
	    EventCapacity:        100,
	    FlushInterval:        5 * time.Second,
	    AllAttributesPrivate: true,
	    Logger:               logger,
	    OnError:              func(err error) { logger.Warn("events", "error", err) },
	})
	p.Start(ctx)
	defer p.Close(context.Background())

	p.Enqueue(&event.FeatureEvent{
	    Base:        event.Base{Kind: event.KindFeature, CreationDate: now, Context: user},
	    Key:         "new-checkout",
	    Value:       true,
	    TrackEvents: true,
	})

# Delivery

Failed posts are retried once. A status the collector uses to reject the
SDK outright (401, 403, 404 and other non-retryable 4xx) disables the
processor for good: later calls do nothing. Other failures are reported
through Config.OnError and the batch is dropped.

# Sampling and debug events

With a sampling interval N above zero each event is kept with probability
1/N. A feature event whose debugEventsUntilDate is later than both the
local clock and the last Date returned by the collector also produces a
debug copy.

# Subpackages

  - attrref: attribute references and redacting clones
  - canonical: canonical JSON serialization
  - ldcontext: context model, hashing and filtering
  - event: event types and summarizers
  - sender: HTTP delivery and the fallback ping path
  - diagnostics: diagnostic statistics and events
  - flagstore: per-context flag cache
  - config: settings loading
  - observability: logging, metrics and tracing helpers
*/
package flagevents
