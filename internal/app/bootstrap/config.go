package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viralforge/dataplane/internal/domain"
)

// BackendConfig is one backend entry. The schema is exactly these four
// fields, validated at startup.
type BackendConfig struct {
	Name             string
	Region           string
	Role             string
	ConnectionString string
}

// Config is the resolved runtime configuration for the dataplane. It merges
// file defaults and environment overrides to support both local and deployed
// runs.
type Config struct {
	ServiceID string
	HTTPPort  int

	Backends []BackendConfig

	RedisURL              string
	EntryTTL              time.Duration
	ListTTL               time.Duration
	MemoryTTLCeiling      time.Duration
	MemoryJanitorInterval time.Duration

	ProbeTimeout    time.Duration
	RefreshInterval time.Duration
	FailThreshold   int

	KafkaBrokers []string
	KafkaTopic   string

	MaxDBConns int32
}

// configFile mirrors the YAML schema used by configs/default.yaml. It is
// intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
	} `yaml:"service"`
	Backends []struct {
		Name             string `yaml:"name"`
		Region           string `yaml:"region"`
		Role             string `yaml:"role"`
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"backends"`
	Cache struct {
		RedisURL         string `yaml:"redis_url"`
		EntryTTL         string `yaml:"entry_ttl"`
		ListTTL          string `yaml:"list_ttl"`
		MemoryTTLCeiling string `yaml:"memory_ttl_ceiling"`
	} `yaml:"cache"`
	Health struct {
		ProbeTimeout    string `yaml:"probe_timeout"`
		RefreshInterval string `yaml:"refresh_interval"`
		FailThreshold   int    `yaml:"fail_threshold"`
	} `yaml:"health"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		Topic        string   `yaml:"topic"`
	} `yaml:"events"`
	MaxDBConns int32 `yaml:"max_db_conns"`
}

// LoadConfig resolves configuration in priority order: defaults -> file ->
// env. This order keeps local bootstrap simple while allowing
// environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "dataplane",
		HTTPPort:              8080,
		EntryTTL:              10 * time.Minute,
		ListTTL:               2 * time.Minute,
		MemoryTTLCeiling:      10 * time.Minute,
		MemoryJanitorInterval: time.Minute,
		ProbeTimeout:          5 * time.Second,
		RefreshInterval:       30 * time.Second,
		FailThreshold:         3,
		KafkaTopic:            "dataplane.events",
		MaxDBConns:            20,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		for _, b := range f.Backends {
			cfg.Backends = append(cfg.Backends, BackendConfig{
				Name:             b.Name,
				Region:           b.Region,
				Role:             b.Role,
				ConnectionString: b.ConnectionString,
			})
		}
		if f.Cache.RedisURL != "" {
			cfg.RedisURL = f.Cache.RedisURL
		}
		if err := overrideDuration(&cfg.EntryTTL, f.Cache.EntryTTL); err != nil {
			return Config{}, err
		}
		if err := overrideDuration(&cfg.ListTTL, f.Cache.ListTTL); err != nil {
			return Config{}, err
		}
		if err := overrideDuration(&cfg.MemoryTTLCeiling, f.Cache.MemoryTTLCeiling); err != nil {
			return Config{}, err
		}
		if err := overrideDuration(&cfg.ProbeTimeout, f.Health.ProbeTimeout); err != nil {
			return Config{}, err
		}
		if err := overrideDuration(&cfg.RefreshInterval, f.Health.RefreshInterval); err != nil {
			return Config{}, err
		}
		if f.Health.FailThreshold > 0 {
			cfg.FailThreshold = f.Health.FailThreshold
		}
		if len(f.Events.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Events.KafkaBrokers
		}
		if f.Events.Topic != "" {
			cfg.KafkaTopic = f.Events.Topic
		}
		if f.MaxDBConns > 0 {
			cfg.MaxDBConns = f.MaxDBConns
		}
	}

	cfg.ServiceID = envString("DATAPLANE_SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("DATAPLANE_HTTP_PORT", cfg.HTTPPort)
	cfg.RedisURL = envString("DATAPLANE_REDIS_URL", cfg.RedisURL)
	cfg.KafkaTopic = envString("DATAPLANE_KAFKA_TOPIC", cfg.KafkaTopic)
	if brokers := os.Getenv("DATAPLANE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	cfg.MaxDBConns = int32(envInt("DATAPLANE_MAX_DB_CONNS", int(cfg.MaxDBConns)))
	cfg.FailThreshold = envInt("DATAPLANE_HEALTH_FAIL_THRESHOLD", cfg.FailThreshold)
	var envErr error
	cfg.RefreshInterval, envErr = envDuration("DATAPLANE_HEALTH_REFRESH_INTERVAL", cfg.RefreshInterval)
	if envErr != nil {
		return Config{}, envErr
	}
	cfg.ProbeTimeout, envErr = envDuration("DATAPLANE_HEALTH_PROBE_TIMEOUT", cfg.ProbeTimeout)
	if envErr != nil {
		return Config{}, envErr
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Descriptors materializes the configured backends.
func (c Config) Descriptors() ([]*domain.ConnectionDescriptor, error) {
	out := make([]*domain.ConnectionDescriptor, 0, len(c.Backends))
	for _, b := range c.Backends {
		role, err := domain.ParseRole(b.Role)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewConnectionDescriptor(b.Name, b.Region, role, b.ConnectionString))
	}
	return out, nil
}

func (c Config) validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("%w: no backends configured", domain.ErrInvalidConfig)
	}
	primaries := 0
	for _, b := range c.Backends {
		role, err := domain.ParseRole(b.Role)
		if err != nil {
			return err
		}
		if role == domain.RolePrimary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("%w: expected exactly one primary backend, found %d", domain.ErrInvalidConfig, primaries)
	}
	return nil
}

func overrideDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*dst = parsed
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
