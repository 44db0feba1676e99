package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/viralforge/dataplane/internal/ports"
)

// Stats counts per-tier hits and misses for the ops surface.
type Stats struct {
	MemoryHits        atomic.Int64
	MemoryMisses      atomic.Int64
	DistributedHits   atomic.Int64
	DistributedMisses atomic.Int64
	Populates         atomic.Int64
	BackendErrors     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	MemoryHits        int64 `json:"memory_hits"`
	MemoryMisses      int64 `json:"memory_misses"`
	DistributedHits   int64 `json:"distributed_hits"`
	DistributedMisses int64 `json:"distributed_misses"`
	Populates         int64 `json:"populates"`
	BackendErrors     int64 `json:"backend_errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MemoryHits:        s.MemoryHits.Load(),
		MemoryMisses:      s.MemoryMisses.Load(),
		DistributedHits:   s.DistributedHits.Load(),
		DistributedMisses: s.DistributedMisses.Load(),
		Populates:         s.Populates.Load(),
		BackendErrors:     s.BackendErrors.Load(),
	}
}

// defaultMemoryTTLCeiling bounds how long a distributed hit may live in the
// in-process tier. Memory staleness stays bounded independently of the
// distributed TTL.
const defaultMemoryTTLCeiling = 10 * time.Minute

// Service is the two-tier cache: in-process first, shared second. Shared-tier
// failures degrade to miss/no-op with a warning; the cache is never a hard
// dependency for the caller's operation.
type Service struct {
	memory           *MemoryStore
	distributed      DistributedStore
	memoryTTLCeiling time.Duration
	logger           *slog.Logger
	stats            *Stats
}

// NewService composes the tiers. distributed may be nil, which degrades every
// distributed-level operation to a miss/no-op (memory-only deployment or an
// unreachable shared store at startup).
func NewService(memory *MemoryStore, distributed DistributedStore, memoryTTLCeiling time.Duration, logger *slog.Logger) *Service {
	if memoryTTLCeiling <= 0 {
		memoryTTLCeiling = defaultMemoryTTLCeiling
	}
	return &Service{
		memory:           memory,
		distributed:      distributed,
		memoryTTLCeiling: memoryTTLCeiling,
		logger:           logger.With("module", "cache", "layer", "service"),
		stats:            &Stats{},
	}
}

// Stats exposes the hit/miss counters.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Get checks the requested tiers in memory-then-distributed order. A
// distributed hit at LevelBoth backfills the memory tier with a capped TTL.
func (s *Service) Get(ctx context.Context, key string, level ports.Level) ([]byte, bool) {
	if level.IncludesMemory() {
		if value, ok := s.memory.Get(key); ok {
			s.stats.MemoryHits.Add(1)
			s.logLookup(ctx, key, "memory", true)
			return value, true
		}
		s.stats.MemoryMisses.Add(1)
	}

	if level.IncludesDistributed() {
		value, remaining, found, err := s.distributedGet(ctx, key)
		if err != nil {
			s.stats.BackendErrors.Add(1)
			s.warnBackend(ctx, "get", key, err)
			return nil, false
		}
		if found {
			s.stats.DistributedHits.Add(1)
			s.logLookup(ctx, key, "distributed", true)
			if level.IncludesMemory() {
				s.memory.Set(key, value, s.backfillTTL(remaining))
			}
			return value, true
		}
		s.stats.DistributedMisses.Add(1)
	}

	s.logLookup(ctx, key, level.String(), false)
	return nil, false
}

// Set writes the value to the requested tiers. The memory copy never outlives
// the capped ceiling.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration, level ports.Level) error {
	if level.IncludesMemory() {
		s.memory.Set(key, value, min(ttl, s.memoryTTLCeiling))
	}
	if level.IncludesDistributed() && s.distributed != nil {
		if err := s.distributed.Set(ctx, key, value, ttl); err != nil {
			s.stats.BackendErrors.Add(1)
			s.warnBackend(ctx, "set", key, err)
		}
	}
	return nil
}

// Remove deletes key from the requested tiers. Other instances' memory copies
// are untouched and expire passively; that staleness window is the accepted
// tradeoff of the two-tier design.
func (s *Service) Remove(ctx context.Context, key string, level ports.Level) error {
	if level.IncludesMemory() {
		s.memory.Delete(key)
	}
	if level.IncludesDistributed() && s.distributed != nil {
		if err := s.distributed.Delete(ctx, key); err != nil {
			s.stats.BackendErrors.Add(1)
			s.warnBackend(ctx, "remove", key, err)
		}
	}
	return nil
}

// GetOrSet returns the cached value or populates it on a full miss. Populate
// errors propagate unmodified; the cache adds no wrapping.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, level ports.Level, populate ports.PopulateFunc) ([]byte, error) {
	if value, ok := s.Get(ctx, key, level); ok {
		return value, nil
	}

	value, err := populate(ctx)
	if err != nil {
		return nil, err
	}
	s.stats.Populates.Add(1)
	_ = s.Set(ctx, key, value, ttl, level)
	return value, nil
}

func (s *Service) distributedGet(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	if s.distributed == nil {
		return nil, 0, false, nil
	}
	return s.distributed.Get(ctx, key)
}

// backfillTTL bounds a memory backfill by both the ceiling and the entry's
// remaining distributed lifetime, so the in-process copy never outlives the
// shared one.
func (s *Service) backfillTTL(remaining time.Duration) time.Duration {
	if remaining <= 0 {
		return s.memoryTTLCeiling
	}
	return min(remaining, s.memoryTTLCeiling)
}

func (s *Service) logLookup(ctx context.Context, key, tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	s.logger.DebugContext(ctx, "cache lookup",
		"operation", "get",
		"outcome", outcome,
		"key", key,
		"tier", tier,
	)
}

func (s *Service) warnBackend(ctx context.Context, operation, key string, err error) {
	s.logger.WarnContext(ctx, "distributed cache unavailable",
		"operation", operation,
		"outcome", "degraded",
		"key", key,
		"error", err.Error(),
	)
}
