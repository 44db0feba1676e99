package ports

import (
	"context"
	"time"
)

// Level selects which cache tiers an operation touches.
type Level int

const (
	// LevelMemory targets only the in-process store.
	LevelMemory Level = 1 << iota
	// LevelDistributed targets only the shared store.
	LevelDistributed
	// LevelBoth propagates through both tiers. Callers needing cross-instance
	// invalidation correctness must remove with LevelBoth.
	LevelBoth Level = LevelMemory | LevelDistributed
)

// IncludesMemory reports whether the in-process tier participates.
func (l Level) IncludesMemory() bool { return l&LevelMemory != 0 }

// IncludesDistributed reports whether the shared tier participates.
func (l Level) IncludesDistributed() bool { return l&LevelDistributed != 0 }

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDistributed:
		return "distributed"
	case LevelBoth:
		return "both"
	default:
		return "unknown"
	}
}

// PopulateFunc loads a value on a full cache miss. Errors it returns are
// propagated to the caller unmodified; the cache adds no wrapping.
type PopulateFunc func(ctx context.Context) ([]byte, error)

// CacheService is a two-tier key/value cache with per-call level selection.
// All operations are best-effort with respect to shared-store failures: an
// unreachable distributed tier degrades to miss/no-op and never fails the
// caller's primary operation.
type CacheService interface {
	Get(ctx context.Context, key string, level Level) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, level Level) error
	Remove(ctx context.Context, key string, level Level) error
	GetOrSet(ctx context.Context, key string, ttl time.Duration, level Level, populate PopulateFunc) ([]byte, error)
}
