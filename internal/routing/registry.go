package routing

import (
	"fmt"

	"github.com/viralforge/dataplane/internal/domain"
)

// Registry is the validated, immutable set of backend descriptors for one
// logical store. It is built once at startup; health state mutates inside the
// descriptors, never the set itself. The primary is never removed from the
// registry by health checks.
type Registry struct {
	primary      *domain.ConnectionDescriptor
	readReplicas []*domain.ConnectionDescriptor
	reporting    []*domain.ConnectionDescriptor
	all          []*domain.ConnectionDescriptor
}

// NewRegistry validates the descriptor set: exactly one primary, unique
// names, non-empty connection strings.
func NewRegistry(descriptors []*domain.ConnectionDescriptor) (*Registry, error) {
	reg := &Registry{}
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: backend with empty name", domain.ErrInvalidConfig)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate backend name %q", domain.ErrInvalidConfig, d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.ConnectionString == "" {
			return nil, fmt.Errorf("%w: backend %q has empty connection string", domain.ErrInvalidConfig, d.Name)
		}

		switch d.Role {
		case domain.RolePrimary:
			if reg.primary != nil {
				return nil, fmt.Errorf("%w: more than one primary backend (%q and %q)", domain.ErrInvalidConfig, reg.primary.Name, d.Name)
			}
			reg.primary = d
		case domain.RoleReadReplica:
			reg.readReplicas = append(reg.readReplicas, d)
		case domain.RoleReporting:
			reg.reporting = append(reg.reporting, d)
		default:
			return nil, fmt.Errorf("%w: backend %q has unknown role %q", domain.ErrInvalidConfig, d.Name, d.Role)
		}
		reg.all = append(reg.all, d)
	}
	if reg.primary == nil {
		return nil, fmt.Errorf("%w: no primary backend configured", domain.ErrInvalidConfig)
	}
	return reg, nil
}

// Primary returns the single read-write backend of record.
func (r *Registry) Primary() *domain.ConnectionDescriptor {
	return r.primary
}

// ReadReplicas returns replicas eligible for latency-sensitive reads, in
// configuration order.
func (r *Registry) ReadReplicas() []*domain.ConnectionDescriptor {
	return r.readReplicas
}

// ReportingCandidates returns every replica eligible for long-running
// analytical queries: dedicated reporting backends plus read replicas.
func (r *Registry) ReportingCandidates() []*domain.ConnectionDescriptor {
	out := make([]*domain.ConnectionDescriptor, 0, len(r.reporting)+len(r.readReplicas))
	out = append(out, r.reporting...)
	out = append(out, r.readReplicas...)
	return out
}

// All returns every descriptor, primary first.
func (r *Registry) All() []*domain.ConnectionDescriptor {
	out := make([]*domain.ConnectionDescriptor, 0, len(r.all))
	out = append(out, r.primary)
	for _, d := range r.all {
		if d != r.primary {
			out = append(out, d)
		}
	}
	return out
}
