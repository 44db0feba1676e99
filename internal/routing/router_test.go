package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"gorm.io/gorm"

	"github.com/viralforge/dataplane/internal/domain"
)

type fakeHealth struct {
	down map[string]bool
}

func (f *fakeHealth) Healthy(d *domain.ConnectionDescriptor) bool {
	return !f.down[d.Name]
}

type fakeFactory struct {
	probeErr map[string]error
	opened   []string
}

func (f *fakeFactory) Open(_ context.Context, d *domain.ConnectionDescriptor) (*gorm.DB, error) {
	f.opened = append(f.opened, d.Name)
	return nil, nil
}

func (f *fakeFactory) Probe(_ context.Context, d *domain.ConnectionDescriptor) error {
	if f.probeErr == nil {
		return nil
	}
	return f.probeErr[d.Name]
}

func (f *fakeFactory) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type routerFixture struct {
	registry *Registry
	health   *fakeHealth
	factory  *fakeFactory
	router   *Router
}

func newRouterFixture(t *testing.T, descriptors ...*domain.ConnectionDescriptor) *routerFixture {
	t.Helper()
	registry, err := NewRegistry(descriptors)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	health := &fakeHealth{down: map[string]bool{}}
	factory := &fakeFactory{}
	return &routerFixture{
		registry: registry,
		health:   health,
		factory:  factory,
		router:   NewRouter(registry, health, factory, testLogger()),
	}
}

func primaryAndReplicas(names ...string) []*domain.ConnectionDescriptor {
	out := []*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("primary", "us-east-1", domain.RolePrimary, "postgres://u:p@primary:5432/db"),
	}
	for _, name := range names {
		out = append(out, domain.NewConnectionDescriptor(name, "us-east-1", domain.RoleReadReplica, "postgres://u:p@"+name+":5432/db"))
	}
	return out
}

func TestRouteWriteAlwaysPrimary(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2", "r3")...)
	for i := 0; i < 10; i++ {
		d, err := f.router.RouteDescriptor(domain.OperationWrite)
		if err != nil {
			t.Fatalf("route write: %v", err)
		}
		if d.Role != domain.RolePrimary {
			t.Fatalf("write routed to %s (%s), want primary", d.Name, d.Role)
		}
	}
}

func TestRouteWritePrimaryUnhealthy(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2")...)
	f.health.down["primary"] = true

	d, err := f.router.RouteDescriptor(domain.OperationWrite)
	if !errors.Is(err, domain.ErrPrimaryUnavailable) {
		t.Fatalf("expected ErrPrimaryUnavailable, got descriptor=%v err=%v", d, err)
	}
}

func TestRouteReadRoundRobinSkipsUnhealthy(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2", "r3")...)
	f.health.down["r2"] = true

	want := []string{"r1", "r3", "r1", "r3"}
	for i, expected := range want {
		d, err := f.router.RouteDescriptor(domain.OperationRead)
		if err != nil {
			t.Fatalf("route read %d: %v", i, err)
		}
		if d.Name != expected {
			t.Fatalf("read %d routed to %s, want %s", i, d.Name, expected)
		}
	}
}

func TestRouteReadRoundRobinFairness(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2", "r3")...)
	var previous string
	seen := map[string]int{}
	for i := 0; i < 9; i++ {
		d, err := f.router.RouteDescriptor(domain.OperationRead)
		if err != nil {
			t.Fatalf("route read: %v", err)
		}
		if d.Name == previous {
			t.Fatalf("replica %s chosen twice in a row with others available", d.Name)
		}
		previous = d.Name
		seen[d.Name]++
	}
	for _, name := range []string{"r1", "r2", "r3"} {
		if seen[name] != 3 {
			t.Fatalf("uneven distribution: %v", seen)
		}
	}
}

func TestRouteReadFallsBackToPrimaryWhenReplicasDown(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2")...)
	f.health.down["r1"] = true
	f.health.down["r2"] = true

	d, err := f.router.RouteDescriptor(domain.OperationRead)
	if err != nil {
		t.Fatalf("route read: %v", err)
	}
	if d.Name != "primary" {
		t.Fatalf("read routed to %s, want primary fallback", d.Name)
	}
}

func TestRouteReadNoReplicasConfigured(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas()...)
	d, err := f.router.RouteDescriptor(domain.OperationRead)
	if err != nil {
		t.Fatalf("route read: %v", err)
	}
	if d.Name != "primary" {
		t.Fatalf("read routed to %s, want primary", d.Name)
	}
}

func TestRouteReadNothingHealthy(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1")...)
	f.health.down["primary"] = true
	f.health.down["r1"] = true

	_, err := f.router.RouteDescriptor(domain.OperationRead)
	if !errors.Is(err, domain.ErrNoHealthyBackend) {
		t.Fatalf("expected ErrNoHealthyBackend, got %v", err)
	}
}

func TestRouteReadCursorResumesAfterRecovery(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1", "r2")...)
	f.health.down["r2"] = true

	// Two reads both land on r1 while r2 is down; the cursor stays on r1.
	for i := 0; i < 2; i++ {
		d, err := f.router.RouteDescriptor(domain.OperationRead)
		if err != nil {
			t.Fatalf("route read: %v", err)
		}
		if d.Name != "r1" {
			t.Fatalf("read routed to %s, want r1", d.Name)
		}
	}

	// Once r2 recovers it is next in rotation, not permanently skewed away.
	f.health.down["r2"] = false
	d, err := f.router.RouteDescriptor(domain.OperationRead)
	if err != nil {
		t.Fatalf("route read: %v", err)
	}
	if d.Name != "r2" {
		t.Fatalf("read routed to %s after recovery, want r2", d.Name)
	}
}

func TestRouteReportingPrefersReplicas(t *testing.T) {
	t.Parallel()

	descriptors := primaryAndReplicas("r1", "r2")
	descriptors = append(descriptors,
		domain.NewConnectionDescriptor("rep1", "us-east-1", domain.RoleReporting, "postgres://u:p@rep1:5432/db"))
	f := newRouterFixture(t, descriptors...)

	for i := 0; i < 20; i++ {
		d, err := f.router.RouteDescriptor(domain.OperationReporting)
		if err != nil {
			t.Fatalf("route reporting: %v", err)
		}
		if d.Role == domain.RolePrimary {
			t.Fatalf("reporting routed to primary while replicas healthy")
		}
	}
}

func TestRouteReportingDeterministicPick(t *testing.T) {
	t.Parallel()

	descriptors := primaryAndReplicas("r1")
	descriptors = append(descriptors,
		domain.NewConnectionDescriptor("rep1", "us-east-1", domain.RoleReporting, "postgres://u:p@rep1:5432/db"))
	f := newRouterFixture(t, descriptors...)
	f.router.pick = func(int) int { return 0 }

	// Reporting candidates list dedicated reporting backends first.
	d, err := f.router.RouteDescriptor(domain.OperationReporting)
	if err != nil {
		t.Fatalf("route reporting: %v", err)
	}
	if d.Name != "rep1" {
		t.Fatalf("reporting routed to %s, want rep1", d.Name)
	}
}

func TestRouteReportingFallsBackToPrimary(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1")...)
	f.health.down["r1"] = true

	d, err := f.router.RouteDescriptor(domain.OperationReporting)
	if err != nil {
		t.Fatalf("route reporting: %v", err)
	}
	if d.Name != "primary" {
		t.Fatalf("reporting routed to %s, want primary fallback", d.Name)
	}

	f.health.down["primary"] = true
	if _, err := f.router.RouteDescriptor(domain.OperationReporting); !errors.Is(err, domain.ErrNoHealthyBackend) {
		t.Fatalf("expected ErrNoHealthyBackend, got %v", err)
	}
}

func TestAcquireOpensChosenBackend(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas("r1")...)
	_, d, err := f.router.Acquire(context.Background(), domain.OperationWrite)
	if err != nil {
		t.Fatalf("acquire write: %v", err)
	}
	if d.Name != "primary" {
		t.Fatalf("acquired %s, want primary", d.Name)
	}
	if len(f.factory.opened) != 1 || f.factory.opened[0] != "primary" {
		t.Fatalf("factory opened %v, want [primary]", f.factory.opened)
	}
}

func TestRouteUnknownOperation(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, primaryAndReplicas()...)
	if _, err := f.router.RouteDescriptor(domain.OperationType("scan")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
