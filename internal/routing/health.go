package routing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/viralforge/dataplane/internal/domain"
	"github.com/viralforge/dataplane/internal/ports"
)

// HealthSource answers whether a backend may receive traffic. The router
// consumes the cached verdict; it never probes synchronously on the request
// path.
type HealthSource interface {
	Healthy(d *domain.ConnectionDescriptor) bool
}

// MonitorConfig tunes probe behavior. Zero values fall back to defaults.
type MonitorConfig struct {
	// ProbeTimeout bounds a single liveness round-trip. Distinct from, and
	// much shorter than, normal operation timeouts.
	ProbeTimeout time.Duration
	// RefreshInterval is the background probe cadence.
	RefreshInterval time.Duration
	// FailThreshold is how many consecutive probe failures mark a backend
	// unhealthy. One success brings it back.
	FailThreshold int
}

const (
	defaultProbeTimeout    = 5 * time.Second
	defaultRefreshInterval = 30 * time.Second
	defaultFailThreshold   = 3
)

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.FailThreshold <= 0 {
		c.FailThreshold = defaultFailThreshold
	}
	return c
}

// Monitor owns backend health state. It is the single writer of descriptor
// health fields; the routing hot path reads them lock-free. Probe failures
// are routine events, logged and absorbed, never surfaced as errors.
type Monitor struct {
	factory   ports.ConnectionFactory
	publisher ports.EventPublisher
	logger    *slog.Logger
	cfg       MonitorConfig
	now       func() time.Time
}

// NewMonitor builds a monitor over the given connection factory.
func NewMonitor(factory ports.ConnectionFactory, publisher ports.EventPublisher, logger *slog.Logger, cfg MonitorConfig) *Monitor {
	return &Monitor{
		factory:   factory,
		publisher: publisher,
		logger:    logger.With("module", "routing", "layer", "health"),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Healthy returns the last known verdict. A descriptor that has never been
// probed is optimistically healthy.
func (m *Monitor) Healthy(d *domain.ConnectionDescriptor) bool {
	return d.Healthy()
}

// Probe issues one bounded liveness round-trip and folds the outcome into the
// descriptor's health state. The boolean is the verdict for this probe, not
// the rotation state; a single failure on a healthy backend does not trip it.
func (m *Monitor) Probe(ctx context.Context, d *domain.ConnectionDescriptor) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	at := m.now().UTC()
	if err := m.factory.Probe(probeCtx, d); err != nil {
		tripped := d.RecordProbeFailure(at, m.cfg.FailThreshold)
		m.logger.InfoContext(ctx, "health probe failed",
			"operation", "probe",
			"outcome", "failure",
			"backend", d.Name,
			"region", d.Region,
			"role", string(d.Role),
			"target", d.RedactedTarget(),
			"fail_streak", d.FailStreak(),
			"error", err.Error(),
		)
		if tripped {
			m.emitTransition(ctx, d, "backend_unhealthy")
		}
		return false
	}

	recovered := d.RecordProbeSuccess(at)
	if recovered {
		m.emitTransition(ctx, d, "backend_recovered")
	}
	return true
}

// RefreshAll probes every descriptor once.
func (m *Monitor) RefreshAll(ctx context.Context, registry *Registry) {
	for _, d := range registry.All() {
		if ctx.Err() != nil {
			return
		}
		m.Probe(ctx, d)
	}
}

// Run probes all backends on the configured cadence until ctx is cancelled.
// Probes run off the request path so callers never pay probe latency.
func (m *Monitor) Run(ctx context.Context, registry *Registry) {
	m.logger.InfoContext(ctx, "health refresher started",
		"operation", "run",
		"outcome", "start",
		"refresh_interval", m.cfg.RefreshInterval.String(),
		"fail_threshold", m.cfg.FailThreshold,
	)
	m.RefreshAll(ctx, registry)

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "health refresher stopped",
				"operation", "run",
				"outcome", "stopped",
			)
			return
		case <-ticker.C:
			m.RefreshAll(ctx, registry)
		}
	}
}

func (m *Monitor) emitTransition(ctx context.Context, d *domain.ConnectionDescriptor, eventType string) {
	m.logger.WarnContext(ctx, "backend health transition",
		"operation", "health_transition",
		"outcome", eventType,
		"backend", d.Name,
		"region", d.Region,
		"role", string(d.Role),
	)
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"backend":    d.Name,
		"region":     d.Region,
		"role":       string(d.Role),
		"checked_at": d.LastHealthCheck(),
	})
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, eventType, d.Name, payload); err != nil {
		m.logger.WarnContext(ctx, "health event publish failed",
			"operation", "publish_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}
