package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/viralforge/dataplane/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Factory opens and pools Postgres-backed GORM connections, one handle per
// descriptor, dialed lazily and reused for the process lifetime. Pool
// parameters are set centrally to keep behavior predictable across backends.
type Factory struct {
	logger   *slog.Logger
	maxConns int32

	mu      sync.Mutex
	handles map[string]*gorm.DB
}

// NewFactory builds a factory; maxConns caps each backend's pool.
func NewFactory(logger *slog.Logger, maxConns int32) *Factory {
	return &Factory{
		logger:   logger.With("module", "postgres", "layer", "adapter"),
		maxConns: maxConns,
		handles:  make(map[string]*gorm.DB),
	}
}

// Open returns the pooled handle for the descriptor, dialing and validating
// on first use. The handle is shared; callers must not close it.
func (f *Factory) Open(ctx context.Context, d *domain.ConnectionDescriptor) (*gorm.DB, error) {
	f.mu.Lock()
	if db, ok := f.handles[d.Name]; ok {
		f.mu.Unlock()
		return db, nil
	}
	f.mu.Unlock()

	db, err := f.dial(ctx, d)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.handles[d.Name]; ok {
		// Lost a dial race; keep the first handle.
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return existing, nil
	}
	f.handles[d.Name] = db
	return db, nil
}

// Probe issues a minimal liveness round-trip using the pooled handle. The
// ping is scoped by ctx and releases its connection on every exit path.
func (f *Factory) Probe(ctx context.Context, d *domain.ConnectionDescriptor) error {
	db, err := f.Open(ctx, d)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases every pooled handle.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for name, db := range f.handles {
		sqlDB, err := db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.handles, name)
	}
	return firstErr
}

func (f *Factory) dial(ctx context.Context, d *domain.ConnectionDescriptor) (*gorm.DB, error) {
	f.logger.InfoContext(ctx, "postgres connect started",
		"operation", "connect",
		"outcome", "start",
		"backend", d.Name,
		"region", d.Region,
		"role", string(d.Role),
		"target", d.RedactedTarget(),
	)
	db, err := gorm.Open(postgres.Open(d.ConnectionString), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres %s: %w", d.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if f.maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(f.maxConns))
		sqlDB.SetMaxIdleConns(int(f.maxConns) / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", d.Name, err)
	}
	f.logger.InfoContext(ctx, "postgres connect completed",
		"operation", "connect",
		"outcome", "success",
		"backend", d.Name,
	)
	return db, nil
}

// RunMigrations applies embedded SQL migrations in lexical order against the
// primary. Embedding migrations with the binary avoids drift between code and
// schema at startup.
func RunMigrations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		logger.InfoContext(ctx, "migration applied",
			"module", "postgres",
			"layer", "adapter",
			"operation", "apply_migration",
			"outcome", "success",
			"migration", name,
		)
	}
	return nil
}
