package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/viralforge/dataplane/internal/domain"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
service:
  id: dataplane-test
  http_port: 9999
backends:
  - name: primary
    region: us-east-1
    role: primary
    connection_string: postgres://u:p@primary:5432/db
  - name: replica-1
    region: us-west-2
    role: read_replica
    connection_string: postgres://u:p@replica-1:5432/db
cache:
  redis_url: redis://localhost:6379/0
  entry_ttl: 5m
  list_ttl: 90s
health:
  refresh_interval: 10s
  fail_threshold: 2
max_db_conns: 7
`

func TestLoadConfigMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceID != "dataplane-test" || cfg.HTTPPort != 9999 {
		t.Fatalf("service fields not applied: %+v", cfg)
	}
	if cfg.EntryTTL != 5*time.Minute || cfg.ListTTL != 90*time.Second {
		t.Fatalf("cache ttls not applied: entry=%s list=%s", cfg.EntryTTL, cfg.ListTTL)
	}
	if cfg.RefreshInterval != 10*time.Second || cfg.FailThreshold != 2 {
		t.Fatalf("health fields not applied: %+v", cfg)
	}
	if cfg.ProbeTimeout != 5*time.Second {
		t.Fatalf("probe timeout default lost: %s", cfg.ProbeTimeout)
	}
	if cfg.MaxDBConns != 7 {
		t.Fatalf("max_db_conns not applied: %d", cfg.MaxDBConns)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Backends))
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("DATAPLANE_HTTP_PORT", "8123")
	t.Setenv("DATAPLANE_REDIS_URL", "redis://override:6379/1")
	t.Setenv("DATAPLANE_KAFKA_BROKERS", "broker-a:9092, broker-b:9092")
	t.Setenv("DATAPLANE_HEALTH_REFRESH_INTERVAL", "45s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8123 {
		t.Fatalf("env port override not applied: %d", cfg.HTTPPort)
	}
	if cfg.RedisURL != "redis://override:6379/1" {
		t.Fatalf("env redis override not applied: %s", cfg.RedisURL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker-b:9092" {
		t.Fatalf("env broker override not applied: %v", cfg.KafkaBrokers)
	}
	if cfg.RefreshInterval != 45*time.Second {
		t.Fatalf("env refresh override not applied: %s", cfg.RefreshInterval)
	}
}

func TestLoadConfigRejectsZeroPrimaries(t *testing.T) {
	path := writeConfig(t, `
backends:
  - name: replica-1
    role: read_replica
    connection_string: postgres://u:p@replica-1:5432/db
`)
	if _, err := LoadConfig(path); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadConfigRejectsTwoPrimaries(t *testing.T) {
	path := writeConfig(t, `
backends:
  - name: p1
    role: primary
    connection_string: postgres://u:p@p1:5432/db
  - name: p2
    role: primary
    connection_string: postgres://u:p@p2:5432/db
`)
	if _, err := LoadConfig(path); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownRole(t *testing.T) {
	path := writeConfig(t, `
backends:
  - name: p1
    role: leader
    connection_string: postgres://u:p@p1:5432/db
`)
	if _, err := LoadConfig(path); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown role, got %v", err)
	}
}

func TestDescriptorsMaterializeRoles(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	descriptors, err := cfg.Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Role != domain.RolePrimary || descriptors[1].Role != domain.RoleReadReplica {
		t.Fatalf("roles not materialized: %s/%s", descriptors[0].Role, descriptors[1].Role)
	}
	if !descriptors[0].Healthy() {
		t.Fatalf("descriptors must start optimistically healthy")
	}
}
