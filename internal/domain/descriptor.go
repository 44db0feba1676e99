package domain

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Role classifies what traffic a backend may serve.
type Role string

const (
	RolePrimary     Role = "primary"
	RoleReadReplica Role = "read_replica"
	RoleReporting   Role = "reporting"
)

// ParseRole maps a configuration string onto a known role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePrimary:
		return RolePrimary, nil
	case RoleReadReplica:
		return RoleReadReplica, nil
	case RoleReporting:
		return RoleReporting, nil
	default:
		return "", fmt.Errorf("%w: unknown backend role %q", ErrInvalidConfig, raw)
	}
}

// OperationType is the caller-declared intent of a data operation. The router
// never inspects queries; intent is always explicit.
type OperationType string

const (
	OperationRead      OperationType = "read"
	OperationWrite     OperationType = "write"
	OperationReporting OperationType = "reporting"
)

// ConnectionDescriptor is an immutable record of a backend endpoint plus
// mutable health state. The identity fields are set once at construction; the
// health fields are written only by the health monitor (single writer) and
// read lock-free on the routing hot path.
type ConnectionDescriptor struct {
	Name             string
	Region           string
	Role             Role
	ConnectionString string

	unhealthy  atomic.Bool
	lastProbe  atomic.Int64
	failStreak atomic.Int32
}

// NewConnectionDescriptor builds a descriptor that is optimistically healthy
// until a probe proves otherwise.
func NewConnectionDescriptor(name, region string, role Role, connectionString string) *ConnectionDescriptor {
	return &ConnectionDescriptor{
		Name:             name,
		Region:           region,
		Role:             role,
		ConnectionString: connectionString,
	}
}

// Healthy reports the last known probe verdict.
func (d *ConnectionDescriptor) Healthy() bool {
	return !d.unhealthy.Load()
}

// LastHealthCheck is the time of the most recent probe, zero if never probed.
func (d *ConnectionDescriptor) LastHealthCheck() time.Time {
	nanos := d.lastProbe.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// RecordProbeSuccess marks the descriptor healthy. A single success is enough
// to bring a backend back into rotation.
func (d *ConnectionDescriptor) RecordProbeSuccess(at time.Time) (recovered bool) {
	d.lastProbe.Store(at.UnixNano())
	d.failStreak.Store(0)
	return d.unhealthy.Swap(false)
}

// RecordProbeFailure increments the consecutive-failure streak and marks the
// descriptor unhealthy once the streak reaches threshold. Returns true on the
// healthy-to-unhealthy transition.
func (d *ConnectionDescriptor) RecordProbeFailure(at time.Time, threshold int) (tripped bool) {
	d.lastProbe.Store(at.UnixNano())
	streak := d.failStreak.Add(1)
	if int(streak) < threshold {
		return false
	}
	return !d.unhealthy.Swap(true)
}

// FailStreak is the current run of consecutive probe failures.
func (d *ConnectionDescriptor) FailStreak() int {
	return int(d.failStreak.Load())
}

// RedactedTarget renders the endpoint for logs without credentials. The
// connection string is owned externally and must never be logged in full.
func (d *ConnectionDescriptor) RedactedTarget() string {
	raw := d.ConnectionString
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		raw = raw[at+1:]
	}
	if slash := strings.Index(raw, "/"); slash > 0 {
		raw = raw[:slash]
	}
	if raw == "" {
		return "unknown"
	}
	return raw
}
