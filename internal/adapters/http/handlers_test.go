package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viralforge/dataplane/internal/cache"
	"github.com/viralforge/dataplane/internal/domain"
	"github.com/viralforge/dataplane/internal/routing"
)

func newOpsFixture(t *testing.T) (*routing.Registry, http.Handler) {
	t.Helper()
	registry, err := routing.NewRegistry([]*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("primary", "us-east-1", domain.RolePrimary, "postgres://u:p@primary:5432/db"),
		domain.NewConnectionDescriptor("replica-1", "us-west-2", domain.RoleReadReplica, "postgres://u:p@replica-1:5432/db"),
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	handler := NewHandler("dataplane-test", registry, &routing.Stats{}, &cache.Stats{})
	return registry, NewRouter(handler)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	_, mux := newOpsFixture(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestReadyzTracksPrimaryHealth(t *testing.T) {
	t.Parallel()

	registry, mux := newOpsFixture(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz with healthy primary returned %d", rec.Code)
	}

	registry.Primary().RecordProbeFailure(time.Now().UTC(), 1)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with unhealthy primary returned %d", rec.Code)
	}
}

func TestStatusListsBackends(t *testing.T) {
	t.Parallel()

	_, mux := newOpsFixture(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if resp.Service != "dataplane-test" {
		t.Fatalf("status service %q", resp.Service)
	}
	if len(resp.Backends) != 2 || resp.Backends[0].Role != "primary" {
		t.Fatalf("status backends %+v", resp.Backends)
	}
	for _, b := range resp.Backends {
		if !b.Healthy {
			t.Fatalf("fresh backends should report healthy: %+v", b)
		}
	}
}
