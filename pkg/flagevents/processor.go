package flagevents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/flagevents/pkg/flagevents/config"
	"github.com/randalmurphal/flagevents/pkg/flagevents/diagnostics"
	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
	"github.com/randalmurphal/flagevents/pkg/flagevents/event"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
	"github.com/randalmurphal/flagevents/pkg/flagevents/observability"
	"github.com/randalmurphal/flagevents/pkg/flagevents/sender"
)

// Config holds the validated processor settings.
type Config struct {
	// EventsURL receives analytics batches.
	EventsURL string

	// EventCapacity bounds the outbox. Values below 1 use the default.
	EventCapacity int

	// FlushInterval is the period of the flush timer. Values below the
	// minimum are raised to it.
	FlushInterval time.Duration

	// SamplingInterval keeps one event in N on average. Zero keeps all.
	SamplingInterval int

	AllAttributesPrivate bool
	PrivateAttributes    []string

	// DiagnosticURL enables diagnostic reporting when set and no manager is
	// supplied with WithDiagnosticsManager.
	DiagnosticURL string

	// DiagnosticRecordingInterval is the period of diagnostic events. Zero
	// uses the default; values below the minimum are raised to it.
	DiagnosticRecordingInterval time.Duration

	// Credential is the SDK key or client-side ID. Only its last six
	// characters leave the process, in diagnostic events.
	Credential string

	// Logger receives processor logs. Nil discards them.
	Logger *slog.Logger

	// OnError receives delivery errors. It is called synchronously from
	// the flushing goroutine.
	OnError func(error)
}

// ConfigFromSettings converts loaded settings into a Config.
func ConfigFromSettings(s config.EventSettings) Config {
	return Config{
		EventsURL:            s.EventsURL,
		EventCapacity:        s.EventCapacity,
		FlushInterval:        s.FlushInterval,
		SamplingInterval:     s.SamplingInterval,
		AllAttributesPrivate: s.AllAttributesPrivate,
		PrivateAttributes:    s.PrivateAttributes,

		DiagnosticURL:               s.DiagnosticURL,
		DiagnosticRecordingInterval: s.DiagnosticRecordingInterval,
	}
}

// diagnosticConfiguration is the configuration summary sent in the
// diagnostic init event.
func (c Config) diagnosticConfiguration() map[string]any {
	return map[string]any{
		"customEventsURI":                   c.EventsURL != config.DefaultEventsURL,
		"eventsCapacity":                    c.EventCapacity,
		"eventsFlushIntervalMillis":         c.FlushInterval.Milliseconds(),
		"samplingInterval":                  c.SamplingInterval,
		"allAttributesPrivate":              c.AllAttributesPrivate,
		"diagnosticRecordingIntervalMillis": c.DiagnosticRecordingInterval.Milliseconds(),
	}
}

// Processor queues, summarizes and delivers analytics events.
// All methods are safe for concurrent use.
type Processor struct {
	cfg     Config
	opts    options
	logger  *slog.Logger
	filter  *ldcontext.Filter
	summary *event.MultiSummarizer
	sender  *sender.Sender

	// flushMu serializes flushes so server time updates apply in order.
	flushMu sync.Mutex

	mu             sync.Mutex
	queue          []event.Event
	exceeded       bool
	disabled       bool
	closed         bool
	lastServerTime int64
	cancel         context.CancelFunc
}

// NewProcessor creates a Processor. It does not flush until Start is called
// or Flush is called directly.
func NewProcessor(cfg Config, opts ...Option) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.EventCapacity < 1 {
		cfg.EventCapacity = config.DefaultEventCapacity
	}
	if cfg.FlushInterval < config.MinFlushInterval {
		cfg.FlushInterval = config.MinFlushInterval
	}
	if cfg.SamplingInterval < 0 {
		cfg.SamplingInterval = 0
	}
	switch {
	case cfg.DiagnosticRecordingInterval == 0:
		cfg.DiagnosticRecordingInterval = config.DefaultDiagnosticRecordingInterval
	case cfg.DiagnosticRecordingInterval < config.MinDiagnosticRecordingInterval:
		cfg.DiagnosticRecordingInterval = config.MinDiagnosticRecordingInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = observability.EnrichLogger(logger, "events")

	filter := ldcontext.NewFilter(ldcontext.FilterConfig{
		AllAttributesPrivate: cfg.AllAttributesPrivate,
		PrivateAttributes:    cfg.PrivateAttributes,
	})

	snd := o.sender
	if snd == nil {
		transport := o.transport
		if transport == nil {
			transport = sender.NewHTTPTransport(nil)
		}
		snd = sender.New(transport,
			sender.WithSDKInfo(o.sdkInfo),
			sender.WithLogger(logger),
			sender.WithSpanManager(o.spans),
		)
	}

	if o.manager == nil && cfg.DiagnosticURL != "" {
		collector, _ := o.diagnostics.(diagnostics.Collector)
		o.manager = diagnostics.NewManager(diagnostics.ManagerConfig{
			URL:           cfg.DiagnosticURL,
			Interval:      cfg.DiagnosticRecordingInterval,
			Credential:    cfg.Credential,
			SDK:           sdkData(o.sdkInfo),
			Configuration: cfg.diagnosticConfiguration(),
			Collector:     collector,
			Sender:        snd,
			Clock:         o.clock,
			Logger:        logger,
		})
		o.diagnostics = o.manager.Collector()
	}

	summary := event.NewMultiSummarizer(filter,
		event.WithHasher(o.hasher),
		event.WithLogger(logger),
	)

	return &Processor{
		cfg:     cfg,
		opts:    o,
		logger:  logger,
		filter:  filter,
		summary: summary,
		sender:  snd,
	}
}

// sdkData splits a "Name/Version" user agent for the diagnostic init event.
func sdkData(info sender.SDKInfo) diagnostics.SDKData {
	name, version, _ := strings.Cut(info.UserAgent, "/")
	return diagnostics.SDKData{
		Name:           name,
		Version:        version,
		WrapperName:    info.WrapperName,
		WrapperVersion: info.WrapperVersion,
	}
}

// Enqueue records e. Feature events are always summarized; the event itself
// is queued according to the sampling and tracking rules. Enqueue never
// blocks on delivery and does nothing once the processor is disabled or
// closed.
func (p *Processor) Enqueue(e event.Event) {
	if e == nil {
		return
	}
	p.mu.Lock()
	inactive := p.disabled || p.closed
	p.mu.Unlock()
	if inactive {
		return
	}

	p.summary.SummarizeEvent(e)
	p.opts.metrics.RecordEnqueued(context.Background(), e.Header().Kind)

	sampled := p.shouldSample()
	fe, isFeature := e.(*event.FeatureEvent)
	if !isFeature || fe.Kind != event.KindFeature {
		if sampled {
			p.add(p.makeOutputEvent(e))
		}
		return
	}

	if fe.TrackEvents && sampled {
		p.add(p.makeOutputEvent(fe))
	}
	if sampled && p.shouldDebug(fe) {
		debug := event.NewDebugEvent(fe)
		debug.Context = p.filter.Filter(fe.Context)
		p.add(debug)
	}
}

func (p *Processor) shouldSample() bool {
	n := p.cfg.SamplingInterval
	if n <= 0 {
		return true
	}
	return int(p.opts.rand()*float64(n)) == 0
}

// shouldDebug reports whether the debug window of e is still open on both
// the collector's clock and the local clock.
func (p *Processor) shouldDebug(e *event.FeatureEvent) bool {
	if e.DebugEventsUntilDate == nil {
		return false
	}
	until := *e.DebugEventsUntilDate

	p.mu.Lock()
	serverTime := p.lastServerTime
	p.mu.Unlock()

	return until > serverTime && until > p.opts.clock.Now().UnixMilli()
}

// makeOutputEvent returns the form of e that goes on the wire.
func (p *Processor) makeOutputEvent(e event.Event) event.Event {
	out := e.Clone()
	h := out.Header()
	switch h.Kind {
	case event.KindIdentify, event.KindCustom:
		h.Context = p.filter.Filter(h.Context)
	case event.KindFeature:
		h.Context = p.filter.Filter(h.Context)
		if fe, ok := out.(*event.FeatureEvent); ok {
			fe.TrackEvents = false
			fe.DebugEventsUntilDate = nil
		}
	default:
		h.ContextKeys = ldcontext.Keys(h.Context)
		h.Context = nil
	}
	return out
}

// add appends e to the outbox or drops it when the outbox is full. Only the
// first drop of an overflow episode is logged.
func (p *Processor) add(e event.Event) {
	p.mu.Lock()
	if len(p.queue) < p.cfg.EventCapacity {
		p.queue = append(p.queue, e)
		p.exceeded = false
		p.mu.Unlock()
		return
	}
	first := !p.exceeded
	p.exceeded = true
	p.mu.Unlock()

	if first {
		observability.LogCapacityExceeded(p.logger, p.cfg.EventCapacity)
	}
	if p.opts.diagnostics != nil {
		p.opts.diagnostics.IncrementDroppedEvents()
	}
	p.opts.metrics.RecordDropped(context.Background())
}

// Flush delivers everything queued so far. Delivery errors are reported
// through Config.OnError.
func (p *Processor) Flush(ctx context.Context) {
	p.FlushResult(ctx)
}

// FlushResult is Flush returning the delivery outcome. The Result is zero
// when there was nothing to send. When ctx ends while summaries are still
// being computed, nothing is sent and the queue is left untouched.
func (p *Processor) FlushResult(ctx context.Context) sender.Result {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	if err := p.inactiveErr(); err != nil {
		return sender.Result{Err: err}
	}

	summaries, err := p.summary.Summaries(ctx)
	if err != nil {
		return sender.Result{Err: err}
	}

	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, s := range summaries {
		if !s.Empty() {
			batch = append(batch, s)
		}
	}
	if len(batch) == 0 {
		return sender.Result{}
	}

	if p.opts.diagnostics != nil {
		p.opts.diagnostics.SetEventsInLastBatch(len(batch))
	}

	ctx, span := p.opts.spans.StartFlushSpan(ctx, len(batch))
	observability.LogFlush(p.logger, len(batch), p.cfg.EventsURL)
	elapsed := observability.TimedOperation()

	result := p.sender.SendEvents(ctx, batch, p.cfg.EventsURL, sender.PayloadAnalytics)

	p.opts.metrics.RecordFlush(ctx, len(batch), elapsed(), result.Status, result.Err)
	p.opts.spans.EndSpanWithError(span, result.Err)
	p.handleResult(result)
	return result
}

func (p *Processor) inactiveErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.disabled:
		return ErrProcessorDisabled
	case p.closed:
		return ErrProcessorClosed
	}
	return nil
}

func (p *Processor) handleResult(result sender.Result) {
	if result.Err == nil && result.ServerTime > 0 {
		p.mu.Lock()
		p.lastServerTime = result.ServerTime
		p.mu.Unlock()
	}

	if result.Status < 400 {
		return
	}
	err := result.Err
	if err == nil {
		msg := feerrors.HTTPErrorMessage(result.Status, "event posting", "some events were dropped")
		err = feerrors.UnexpectedResponse(result.Status, msg)
	}

	if !feerrors.IsHTTPErrorRecoverable(result.Status) {
		p.mu.Lock()
		p.disabled = true
		p.queue = nil
		p.mu.Unlock()
		observability.LogDisabled(p.logger, result.Status)
		p.Stop()
	}
	p.reportError(err)
}

func (p *Processor) reportError(err error) {
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
	}
}

// Start schedules the periodic flush and starts the diagnostics manager, if
// any. Calling Start on a running, disabled or closed processor does nothing.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil || p.disabled || p.closed {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	// A flush already under way completes even if Stop is called.
	flushCtx := context.WithoutCancel(ctx)
	p.opts.clock.TickerFunc(ctx, p.cfg.FlushInterval, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.Flush(flushCtx)
		return nil
	}, "flush")

	if p.opts.manager != nil {
		p.opts.manager.Start(ctx)
	}
}

// Stop cancels the flush timer and the diagnostics manager. In-flight
// deliveries run to completion.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p.opts.manager != nil {
		p.opts.manager.Stop()
	}
}

// Close stops the processor and flushes what is left. Later calls return
// ErrProcessorClosed.
func (p *Processor) Close(ctx context.Context) error {
	p.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	p.mu.Unlock()

	result := p.FlushResult(ctx)

	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.mu.Unlock()

	if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
		return result.Err
	}
	return nil
}
