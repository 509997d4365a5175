package flagevents

import (
	"math/rand/v2"

	"github.com/coder/quartz"

	"github.com/randalmurphal/flagevents/pkg/flagevents/diagnostics"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
	"github.com/randalmurphal/flagevents/pkg/flagevents/observability"
	"github.com/randalmurphal/flagevents/pkg/flagevents/sender"
)

// options holds the collaborators of a Processor.
type options struct {
	clock       quartz.Clock
	rand        func() float64
	transport   sender.Transport
	sender      *sender.Sender
	sdkInfo     sender.SDKInfo
	hasher      ldcontext.HasherFactory
	diagnostics diagnostics.Accumulator
	manager     *diagnostics.Manager
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
}

func defaultOptions() options {
	return options{
		clock:   quartz.NewReal(),
		rand:    rand.Float64,
		hasher:  ldcontext.NewBLAKE3Hasher,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Processor.
type Option func(*options)

// WithClock sets the clock used for the flush timer and the debug window.
// Tests pass a quartz mock.
func WithClock(c quartz.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRand sets the uniform [0,1) source used for sampling.
func WithRand(fn func() float64) Option {
	return func(o *options) {
		if fn != nil {
			o.rand = fn
		}
	}
}

// WithTransport sets the transport used by the default sender.
// Default: an HTTPTransport over a client with a 30s timeout.
func WithTransport(t sender.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithSender replaces the sender entirely. WithTransport and WithSDKInfo
// are ignored when it is set.
func WithSender(s *sender.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithSDKInfo sets the identification headers sent with every batch.
func WithSDKInfo(info sender.SDKInfo) Option {
	return func(o *options) { o.sdkInfo = info }
}

// WithHasher sets the hash primitive that buckets summaries by context.
// Default: BLAKE3.
func WithHasher(h ldcontext.HasherFactory) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithDiagnostics reports dropped events and batch sizes to acc.
func WithDiagnostics(acc diagnostics.Accumulator) Option {
	return func(o *options) { o.diagnostics = acc }
}

// WithDiagnosticsManager reports statistics to m and ties its lifecycle to
// the processor: Start and Stop start and stop it as well. It takes
// precedence over Config.DiagnosticURL.
func WithDiagnosticsManager(m *diagnostics.Manager) Option {
	return func(o *options) {
		o.manager = m
		if m != nil {
			o.diagnostics = m.Collector()
		}
	}
}

// WithMetrics enables OpenTelemetry metrics.
//
// Example:
//
//	p := flagevents.NewProcessor(cfg, flagevents.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpanManager enables OpenTelemetry tracing of flushes and posts.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *options) {
		if sm != nil {
			o.spans = sm
		}
	}
}
