package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viralforge/dataplane/internal/domain"
)

// RecipeRepository is plain CRUD over a caller-supplied connection. Routing
// and caching live above this layer; every method takes the already-open
// handle the router chose.
type RecipeRepository struct{}

// NewRecipeRepository constructs the stateless repository.
func NewRecipeRepository() *RecipeRepository {
	return &RecipeRepository{}
}

func (r *RecipeRepository) GetByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (domain.Recipe, error) {
	var rec recipeModel
	if err := db.WithContext(ctx).Where("recipe_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Recipe{}, domain.ErrNotFound
		}
		return domain.Recipe{}, err
	}
	return toDomainRecipe(rec), nil
}

func (r *RecipeRepository) ListByOwner(ctx context.Context, db *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]domain.Recipe, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []recipeModel
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recipe, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainRecipe(rec))
	}
	return out, nil
}

func (r *RecipeRepository) Search(ctx context.Context, db *gorm.DB, query domain.RecipeQuery) ([]domain.Recipe, error) {
	tx := db.WithContext(ctx).Model(&recipeModel{})
	if query.OwnerID != uuid.Nil {
		tx = tx.Where("owner_id = ?", query.OwnerID)
	}
	if query.TitleContains != "" {
		tx = tx.Where("title ILIKE ?", "%"+query.TitleContains+"%")
	}
	if query.Tag != "" {
		tx = tx.Where("tags LIKE ?", "%"+query.Tag+"%")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	var recs []recipeModel
	if err := tx.Order("created_at DESC").Limit(limit).Offset(query.Offset).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Recipe, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainRecipe(rec))
	}
	return out, nil
}

func (r *RecipeRepository) Create(ctx context.Context, db *gorm.DB, recipe domain.Recipe) (domain.Recipe, error) {
	rec := toRecipeModel(recipe)
	if rec.RecipeID == uuid.Nil {
		rec.RecipeID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Recipe{}, domain.ErrConflict
		}
		return domain.Recipe{}, err
	}
	return toDomainRecipe(rec), nil
}

func (r *RecipeRepository) Update(ctx context.Context, db *gorm.DB, recipe domain.Recipe) (domain.Recipe, error) {
	rec := toRecipeModel(recipe)
	rec.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&recipeModel{}).
		Where("recipe_id = ?", rec.RecipeID).
		Updates(map[string]any{
			"title":      rec.Title,
			"body":       rec.Body,
			"tags":       rec.Tags,
			"updated_at": rec.UpdatedAt,
		})
	if res.Error != nil {
		return domain.Recipe{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Recipe{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, db, rec.RecipeID)
}

func (r *RecipeRepository) Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	res := db.WithContext(ctx).Where("recipe_id = ?", id).Delete(&recipeModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
