package application

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/dataplane/internal/domain"
	"github.com/viralforge/dataplane/internal/ports"
)

const (
	recipeKeyFormat        = "recipe:%s"
	ownerListKeyFormat     = "list:owner:%s"
	ownerListPageKeyFormat = "list:owner:%s:%d:%d"
	searchKeyFormat        = "search:owner:%s:%08x"

	// defaultListLimit matches the page size the repository applies when the
	// caller passes none.
	defaultListLimit = 50

	defaultEntryTTL = 10 * time.Minute
	// List and search entries live shorter than single-entity lookups
	// because membership churns on every write.
	defaultListTTL = 2 * time.Minute
)

// writeInvalidationKeys enumerates every cache key cleared after a successful
// recipe write. The mapping is declared centrally, never inferred per call
// site, so invalidation coverage stays total and auditable. Search entries
// and non-default listing pages are not enumerable here and rely on their
// short TTL instead.
func writeInvalidationKeys(recipeID, ownerID uuid.UUID) []string {
	return []string{
		fmt.Sprintf(recipeKeyFormat, recipeID),
		fmt.Sprintf(ownerListKeyFormat, ownerID),
	}
}

// TTLConfig overrides cache lifetimes; zero values use defaults.
type TTLConfig struct {
	Entry time.Duration
	List  time.Duration
}

// CachedRecipeRepository decorates the plain repository with the query router
// and the two-tier cache. Reads consult the cache before touching a backend;
// writes go straight to the primary and then invalidate their keys. The
// decorator is invisible to callers in success paths and in cache failure
// paths; only true data-operation failures surface.
type CachedRecipeRepository struct {
	router    ports.Router
	cache     ports.CacheService
	repo      ports.RecipeRepository
	publisher ports.EventPublisher
	logger    *slog.Logger
	entryTTL  time.Duration
	listTTL   time.Duration
}

// NewCachedRecipeRepository wires the composition layer.
func NewCachedRecipeRepository(
	router ports.Router,
	cache ports.CacheService,
	repo ports.RecipeRepository,
	publisher ports.EventPublisher,
	logger *slog.Logger,
	ttls TTLConfig,
) *CachedRecipeRepository {
	if ttls.Entry <= 0 {
		ttls.Entry = defaultEntryTTL
	}
	if ttls.List <= 0 {
		ttls.List = defaultListTTL
	}
	return &CachedRecipeRepository{
		router:    router,
		cache:     cache,
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("module", "application", "layer", "cached_repository"),
		entryTTL:  ttls.Entry,
		listTTL:   ttls.List,
	}
}

// GetByID serves the recipe from cache, populating through a routed read on
// miss.
func (s *CachedRecipeRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Recipe, error) {
	key := fmt.Sprintf(recipeKeyFormat, id)
	raw, err := s.cache.GetOrSet(ctx, key, s.entryTTL, ports.LevelBoth, func(ctx context.Context) ([]byte, error) {
		db, _, err := s.router.Acquire(ctx, domain.OperationRead)
		if err != nil {
			return nil, err
		}
		recipe, err := s.repo.GetByID(ctx, db, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(recipe)
	})
	if err != nil {
		return domain.Recipe{}, err
	}
	var recipe domain.Recipe
	if err := json.Unmarshal(raw, &recipe); err != nil {
		return domain.Recipe{}, fmt.Errorf("decode cached recipe: %w", err)
	}
	return recipe, nil
}

// ListByOwner serves an owner's recipes from cache with the shorter list TTL.
func (s *CachedRecipeRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Recipe, error) {
	return s.cachedList(ctx, ownerListKey(ownerID, limit, offset), func(ctx context.Context, db connection) ([]domain.Recipe, error) {
		return s.repo.ListByOwner(ctx, db, ownerID, limit, offset)
	})
}

// ownerListKey maps the default first page onto the enumerable invalidation
// key. Every other page shape gets a key of its own so pages never collide;
// those entries are not enumerable at write time and rely on the short list
// TTL, like search entries.
func ownerListKey(ownerID uuid.UUID, limit, offset int) string {
	if (limit <= 0 || limit == defaultListLimit) && offset == 0 {
		return fmt.Sprintf(ownerListKeyFormat, ownerID)
	}
	return fmt.Sprintf(ownerListPageKeyFormat, ownerID, limit, offset)
}

// Search caches results under a key derived from the normalized query shape.
func (s *CachedRecipeRepository) Search(ctx context.Context, query domain.RecipeQuery) ([]domain.Recipe, error) {
	key := fmt.Sprintf(searchKeyFormat, query.OwnerID, queryHash(query))
	return s.cachedList(ctx, key, func(ctx context.Context, db connection) ([]domain.Recipe, error) {
		return s.repo.Search(ctx, db, query)
	})
}

// Report runs an owner listing against a reporting backend, bypassing the
// cache. Analytical reads tolerate replica lag and should not churn the
// latency-sensitive cache tiers.
func (s *CachedRecipeRepository) Report(ctx context.Context, query domain.RecipeQuery) ([]domain.Recipe, error) {
	db, _, err := s.router.Acquire(ctx, domain.OperationReporting)
	if err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, db, query)
}

// Create routes the insert to the primary, then invalidates affected keys.
func (s *CachedRecipeRepository) Create(ctx context.Context, recipe domain.Recipe) (domain.Recipe, error) {
	db, _, err := s.router.Acquire(ctx, domain.OperationWrite)
	if err != nil {
		return domain.Recipe{}, err
	}
	created, err := s.repo.Create(ctx, db, recipe)
	if err != nil {
		return domain.Recipe{}, err
	}
	s.invalidate(ctx, created.ID, created.OwnerID)
	s.publishWrite(ctx, "recipe_created", created.ID, created.OwnerID)
	return created, nil
}

// Update routes the mutation to the primary, then invalidates affected keys.
func (s *CachedRecipeRepository) Update(ctx context.Context, recipe domain.Recipe) (domain.Recipe, error) {
	db, _, err := s.router.Acquire(ctx, domain.OperationWrite)
	if err != nil {
		return domain.Recipe{}, err
	}
	updated, err := s.repo.Update(ctx, db, recipe)
	if err != nil {
		return domain.Recipe{}, err
	}
	s.invalidate(ctx, updated.ID, updated.OwnerID)
	s.publishWrite(ctx, "recipe_updated", updated.ID, updated.OwnerID)
	return updated, nil
}

// Delete routes the delete to the primary, then invalidates affected keys.
// The owner id is required because the owner listing key must be cleared.
func (s *CachedRecipeRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	db, _, err := s.router.Acquire(ctx, domain.OperationWrite)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, db, id); err != nil {
		return err
	}
	s.invalidate(ctx, id, ownerID)
	s.publishWrite(ctx, "recipe_deleted", id, ownerID)
	return nil
}

type connection = ports.Connection

// cachedList is the shared read path for list-shaped lookups.
func (s *CachedRecipeRepository) cachedList(ctx context.Context, key string, load func(ctx context.Context, db connection) ([]domain.Recipe, error)) ([]domain.Recipe, error) {
	raw, err := s.cache.GetOrSet(ctx, key, s.listTTL, ports.LevelBoth, func(ctx context.Context) ([]byte, error) {
		db, _, err := s.router.Acquire(ctx, domain.OperationRead)
		if err != nil {
			return nil, err
		}
		recipes, err := load(ctx, db)
		if err != nil {
			return nil, err
		}
		return json.Marshal(recipes)
	})
	if err != nil {
		return nil, err
	}
	var recipes []domain.Recipe
	if err := json.Unmarshal(raw, &recipes); err != nil {
		return nil, fmt.Errorf("decode cached recipe list: %w", err)
	}
	return recipes, nil
}

// invalidate clears the enumerated keys at both tiers, strictly after the
// write committed. Peers' in-process copies expire passively within the
// memory TTL ceiling.
func (s *CachedRecipeRepository) invalidate(ctx context.Context, recipeID, ownerID uuid.UUID) {
	for _, key := range writeInvalidationKeys(recipeID, ownerID) {
		if err := s.cache.Remove(ctx, key, ports.LevelBoth); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed",
				"operation", "invalidate",
				"outcome", "degraded",
				"key", key,
				"error", err.Error(),
			)
		}
	}
}

func (s *CachedRecipeRepository) publishWrite(ctx context.Context, eventType string, recipeID, ownerID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"recipe_id": recipeID.String(),
		"owner_id":  ownerID.String(),
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, ownerID.String(), payload); err != nil {
		s.logger.WarnContext(ctx, "write event publish failed",
			"operation", "publish_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}

func queryHash(q domain.RecipeQuery) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d", q.OwnerID, q.Tag, q.TitleContains, q.Limit, q.Offset)
	return h.Sum32()
}
