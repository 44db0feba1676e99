package ports

import (
	"context"

	"gorm.io/gorm"

	"github.com/viralforge/dataplane/internal/domain"
)

// Connection is an open backend handle. It aliases the GORM type so
// repositories keep the full query surface without an adapter shim.
type Connection = *gorm.DB

// ConnectionFactory opens and pools backend connections per descriptor.
type ConnectionFactory interface {
	// Open returns a pooled connection handle for the descriptor, dialing on
	// first use. The handle is shared; callers must not close it.
	Open(ctx context.Context, d *domain.ConnectionDescriptor) (*gorm.DB, error)
	// Probe issues a minimal liveness round-trip against the descriptor's
	// backend. The probe uses the pooled handle and never leaks a connection.
	Probe(ctx context.Context, d *domain.ConnectionDescriptor) error
	Close() error
}

// Router selects a backend for a declared operation intent.
type Router interface {
	// RouteDescriptor performs pure backend selection without opening a
	// connection. It never selects a backend it believes unhealthy.
	RouteDescriptor(op domain.OperationType) (*domain.ConnectionDescriptor, error)
	// Acquire selects a backend and returns an open connection to it.
	Acquire(ctx context.Context, op domain.OperationType) (*gorm.DB, *domain.ConnectionDescriptor, error)
}
