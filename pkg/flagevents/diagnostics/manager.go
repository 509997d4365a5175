package diagnostics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/randalmurphal/flagevents/pkg/flagevents/observability"
	"github.com/randalmurphal/flagevents/pkg/flagevents/sender"
)

// Diagnostic event kinds.
const (
	KindInit     = "diagnostic-init"
	KindPeriodic = "diagnostic"
)

// DefaultInterval is the default period between diagnostic events.
const DefaultInterval = 15 * time.Minute

// MinInterval is the smallest accepted period.
const MinInterval = 5 * time.Minute

// ID identifies one SDK instance across its diagnostic events.
type ID struct {
	DiagnosticID string `json:"diagnosticId"`
	SDKKeySuffix string `json:"sdkKeySuffix,omitempty"`
}

// SDKData describes the SDK in the init event.
type SDKData struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	WrapperName    string `json:"wrapperName,omitempty"`
	WrapperVersion string `json:"wrapperVersion,omitempty"`
}

// PlatformData describes the runtime in the init event.
type PlatformData struct {
	Name      string `json:"name"`
	GoVersion string `json:"goVersion"`
	OSName    string `json:"osName"`
	OSArch    string `json:"osArch"`
}

// InitEvent is sent once when reporting starts.
type InitEvent struct {
	Kind          string         `json:"kind"`
	ID            ID             `json:"id"`
	CreationDate  int64          `json:"creationDate"`
	SDK           SDKData        `json:"sdk"`
	Configuration map[string]any `json:"configuration"`
	Platform      PlatformData   `json:"platform"`
}

// PeriodicEvent reports one period's statistics.
type PeriodicEvent struct {
	Kind              string `json:"kind"`
	ID                ID     `json:"id"`
	CreationDate      int64  `json:"creationDate"`
	DataSinceDate     int64  `json:"dataSinceDate"`
	DroppedEvents     int    `json:"droppedEvents"`
	EventsInLastBatch int    `json:"eventsInLastBatch"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// URL receives diagnostic events.
	URL string

	// Interval between periodic events. Values below MinInterval are raised
	// to it; zero means DefaultInterval.
	Interval time.Duration

	// Credential is the SDK key or client-side ID. Only its last six
	// characters are reported.
	Credential string

	// SDK and Configuration are reported in the init event.
	SDK           SDKData
	Configuration map[string]any

	Collector Collector
	Sender    *sender.Sender
	Clock     quartz.Clock
	Logger    *slog.Logger
}

// Manager sends the init event and then a periodic statistics event.
type Manager struct {
	cfg ManagerConfig
	id  ID

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewManager creates a Manager. A nil Clock uses the real clock, a nil
// Collector a fresh MemoryAccumulator.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	switch {
	case cfg.Interval == 0:
		cfg.Interval = DefaultInterval
	case cfg.Interval < MinInterval:
		cfg.Interval = MinInterval
	}
	if cfg.Collector == nil {
		cfg.Collector = NewAccumulator(cfg.Clock.Now().UnixMilli())
	}

	suffix := cfg.Credential
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return &Manager{
		cfg: cfg,
		id:  ID{DiagnosticID: uuid.NewString(), SDKKeySuffix: suffix},
	}
}

// Collector returns the statistics sink the processor should report into.
func (m *Manager) Collector() Collector {
	return m.cfg.Collector
}

// ID returns the instance identity.
func (m *Manager) ID() ID {
	return m.id
}

// Start schedules periodic events and sends the init event in the
// background, so it returns without waiting on the network. Calling Start on
// a running Manager does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.send(ctx, m.InitEvent())
	m.cfg.Clock.TickerFunc(ctx, m.cfg.Interval, func() error {
		m.SendPeriodic(ctx)
		return nil
	}, "diagnostics")
}

// Stop cancels periodic events.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// InitEvent builds the init event.
func (m *Manager) InitEvent() InitEvent {
	return InitEvent{
		Kind:          KindInit,
		ID:            m.id,
		CreationDate:  m.cfg.Clock.Now().UnixMilli(),
		SDK:           m.cfg.SDK,
		Configuration: m.cfg.Configuration,
		Platform: PlatformData{
			Name:      "Go",
			GoVersion: runtime.Version(),
			OSName:    runtime.GOOS,
			OSArch:    runtime.GOARCH,
		},
	}
}

// SendPeriodic sends the statistics gathered since the last period and
// starts a new one.
func (m *Manager) SendPeriodic(ctx context.Context) {
	now := m.cfg.Clock.Now().UnixMilli()
	stats := m.cfg.Collector.Snapshot()
	m.cfg.Collector.Reset(now)

	m.send(ctx, PeriodicEvent{
		Kind:              KindPeriodic,
		ID:                m.id,
		CreationDate:      now,
		DataSinceDate:     stats.DataSinceDate,
		DroppedEvents:     stats.DroppedEvents,
		EventsInLastBatch: stats.EventsInLastBatch,
	})
}

func (m *Manager) send(ctx context.Context, evt any) {
	if m.cfg.Sender == nil || m.cfg.URL == "" {
		return
	}
	kind := KindPeriodic
	if _, ok := evt.(InitEvent); ok {
		kind = KindInit
	}
	observability.LogDiagnostic(m.cfg.Logger, kind)
	m.cfg.Sender.SendEvents(ctx, evt, m.cfg.URL, sender.PayloadDiagnostic)
}
