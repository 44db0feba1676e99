package routing

import (
	"errors"
	"testing"

	"github.com/viralforge/dataplane/internal/domain"
)

func TestRegistryRequiresExactlyOnePrimary(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry([]*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("r1", "", domain.RoleReadReplica, "postgres://u:p@r1/db"),
	}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without a primary, got %v", err)
	}

	if _, err := NewRegistry([]*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("p1", "", domain.RolePrimary, "postgres://u:p@p1/db"),
		domain.NewConnectionDescriptor("p2", "", domain.RolePrimary, "postgres://u:p@p2/db"),
	}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig with two primaries, got %v", err)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry([]*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("a", "", domain.RolePrimary, "postgres://u:p@a/db"),
		domain.NewConnectionDescriptor("a", "", domain.RoleReadReplica, "postgres://u:p@b/db"),
	}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for duplicate names, got %v", err)
	}
}

func TestRegistryReportingCandidatesOrder(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry([]*domain.ConnectionDescriptor{
		domain.NewConnectionDescriptor("primary", "", domain.RolePrimary, "postgres://u:p@p/db"),
		domain.NewConnectionDescriptor("r1", "", domain.RoleReadReplica, "postgres://u:p@r1/db"),
		domain.NewConnectionDescriptor("rep1", "", domain.RoleReporting, "postgres://u:p@rep1/db"),
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	candidates := registry.ReportingCandidates()
	if len(candidates) != 2 {
		t.Fatalf("expected 2 reporting candidates, got %d", len(candidates))
	}
	if candidates[0].Name != "rep1" {
		t.Fatalf("dedicated reporting backend should come first, got %s", candidates[0].Name)
	}
	for _, c := range candidates {
		if c.Role == domain.RolePrimary {
			t.Fatalf("primary must never be a reporting candidate")
		}
	}
}
