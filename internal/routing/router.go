package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/viralforge/dataplane/internal/domain"
	"github.com/viralforge/dataplane/internal/ports"
)

// Stats counts routing decisions for the ops surface.
type Stats struct {
	Reads            atomic.Int64
	Writes           atomic.Int64
	Reporting        atomic.Int64
	PrimaryFallbacks atomic.Int64
	Errors           atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Reads            int64 `json:"reads"`
	Writes           int64 `json:"writes"`
	Reporting        int64 `json:"reporting"`
	PrimaryFallbacks int64 `json:"primary_fallbacks"`
	Errors           int64 `json:"errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Reads:            s.Reads.Load(),
		Writes:           s.Writes.Load(),
		Reporting:        s.Reporting.Load(),
		PrimaryFallbacks: s.PrimaryFallbacks.Load(),
		Errors:           s.Errors.Load(),
	}
}

// Router directs operations to backends by declared intent. Selection
// consults cached health verdicts only; probing happens in the background so
// routing stays on the fast path.
//
// Policy: writes target the primary exclusively. Reads round-robin across
// healthy read replicas and fall back to the primary. Reporting picks
// uniformly at random among healthy reporting/read replicas, because
// long-running analytical queries would concentrate into bursts under
// round-robin.
type Router struct {
	registry *Registry
	health   HealthSource
	factory  ports.ConnectionFactory
	logger   *slog.Logger
	stats    *Stats

	// cursor is the index of the last replica that successfully served a
	// read. It advances only on successful dispatch, so a bad replica does
	// not skew the rotation once it recovers.
	mu     sync.Mutex
	cursor int

	// pick selects a reporting candidate index; replaced in tests.
	pick func(n int) int
}

// NewRouter wires a router over a validated registry.
func NewRouter(registry *Registry, health HealthSource, factory ports.ConnectionFactory, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		health:   health,
		factory:  factory,
		logger:   logger.With("module", "routing", "layer", "router"),
		stats:    &Stats{},
		cursor:   -1,
		pick:     rand.Intn,
	}
}

// Stats exposes the routing counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// RouteDescriptor selects a backend for the operation without opening a
// connection. It never returns a backend it believes unhealthy.
func (r *Router) RouteDescriptor(op domain.OperationType) (*domain.ConnectionDescriptor, error) {
	switch op {
	case domain.OperationWrite:
		return r.routeWrite()
	case domain.OperationRead:
		return r.routeRead()
	case domain.OperationReporting:
		return r.routeReporting()
	default:
		r.stats.Errors.Add(1)
		return nil, fmt.Errorf("%w: unknown operation type %q", domain.ErrInvalidInput, op)
	}
}

// Acquire selects a backend and returns an open, pooled connection to it.
func (r *Router) Acquire(ctx context.Context, op domain.OperationType) (*gorm.DB, *domain.ConnectionDescriptor, error) {
	d, err := r.RouteDescriptor(op)
	if err != nil {
		return nil, nil, err
	}
	db, err := r.factory.Open(ctx, d)
	if err != nil {
		r.stats.Errors.Add(1)
		return nil, nil, fmt.Errorf("open backend %s: %w", d.Name, err)
	}
	return db, d, nil
}

func (r *Router) routeWrite() (*domain.ConnectionDescriptor, error) {
	primary := r.registry.Primary()
	if !r.health.Healthy(primary) {
		r.stats.Errors.Add(1)
		r.logger.Error("write routing failed",
			"operation", "route",
			"operation_type", string(domain.OperationWrite),
			"outcome", "failure",
			"backend", primary.Name,
		)
		return nil, domain.ErrPrimaryUnavailable
	}
	r.stats.Writes.Add(1)
	r.logDecision(domain.OperationWrite, primary, false)
	return primary, nil
}

func (r *Router) routeRead() (*domain.ConnectionDescriptor, error) {
	replicas := r.registry.ReadReplicas()

	if len(replicas) > 0 {
		r.mu.Lock()
		start := r.cursor
		for i := 1; i <= len(replicas); i++ {
			idx := (start + i) % len(replicas)
			candidate := replicas[idx]
			if !r.health.Healthy(candidate) {
				continue
			}
			r.cursor = idx
			r.mu.Unlock()
			r.stats.Reads.Add(1)
			r.logDecision(domain.OperationRead, candidate, false)
			return candidate, nil
		}
		r.mu.Unlock()
	}

	// Reads are safe to serve from the primary, so an empty or fully
	// unhealthy replica set degrades rather than errors.
	primary := r.registry.Primary()
	if !r.health.Healthy(primary) {
		r.stats.Errors.Add(1)
		return nil, domain.ErrNoHealthyBackend
	}
	r.stats.Reads.Add(1)
	if len(replicas) > 0 {
		r.stats.PrimaryFallbacks.Add(1)
	}
	r.logDecision(domain.OperationRead, primary, len(replicas) > 0)
	return primary, nil
}

func (r *Router) routeReporting() (*domain.ConnectionDescriptor, error) {
	var healthy []*domain.ConnectionDescriptor
	for _, d := range r.registry.ReportingCandidates() {
		if r.health.Healthy(d) {
			healthy = append(healthy, d)
		}
	}
	if len(healthy) > 0 {
		chosen := healthy[r.pick(len(healthy))]
		r.stats.Reporting.Add(1)
		r.logDecision(domain.OperationReporting, chosen, false)
		return chosen, nil
	}

	primary := r.registry.Primary()
	if !r.health.Healthy(primary) {
		r.stats.Errors.Add(1)
		return nil, domain.ErrNoHealthyBackend
	}
	r.stats.Reporting.Add(1)
	r.stats.PrimaryFallbacks.Add(1)
	// Performance concern, not a correctness one: long-running reporting
	// queries now share the primary.
	r.logger.Warn("reporting routed to primary",
		"operation", "route",
		"operation_type", string(domain.OperationReporting),
		"outcome", "fallback",
		"backend", primary.Name,
	)
	return primary, nil
}

func (r *Router) logDecision(op domain.OperationType, d *domain.ConnectionDescriptor, fallback bool) {
	r.logger.Debug("routing decision",
		"operation", "route",
		"operation_type", string(op),
		"outcome", "success",
		"backend", d.Name,
		"region", d.Region,
		"role", string(d.Role),
		"primary_fallback", fallback,
	)
}
