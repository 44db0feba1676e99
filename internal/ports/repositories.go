package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/viralforge/dataplane/internal/domain"
)

// RecipeRepository defines plain CRUD against an already-open connection.
// Methods take the connection explicitly so the caller controls routing; the
// repository itself holds no backend state.
type RecipeRepository interface {
	GetByID(ctx context.Context, db Connection, id uuid.UUID) (domain.Recipe, error)
	ListByOwner(ctx context.Context, db Connection, ownerID uuid.UUID, limit, offset int) ([]domain.Recipe, error)
	Search(ctx context.Context, db Connection, query domain.RecipeQuery) ([]domain.Recipe, error)
	Create(ctx context.Context, db Connection, recipe domain.Recipe) (domain.Recipe, error)
	Update(ctx context.Context, db Connection, recipe domain.Recipe) (domain.Recipe, error)
	Delete(ctx context.Context, db Connection, id uuid.UUID) error
}
