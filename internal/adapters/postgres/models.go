package postgres

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/dataplane/internal/domain"
)

type recipeModel struct {
	RecipeID  uuid.UUID `gorm:"column:recipe_id;primaryKey"`
	OwnerID   uuid.UUID `gorm:"column:owner_id;index"`
	Title     string    `gorm:"column:title"`
	Body      string    `gorm:"column:body"`
	Tags      string    `gorm:"column:tags"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (recipeModel) TableName() string { return "recipes" }

func toDomainRecipe(rec recipeModel) domain.Recipe {
	var tags []string
	if rec.Tags != "" {
		tags = strings.Split(rec.Tags, ",")
	}
	return domain.Recipe{
		ID:        rec.RecipeID,
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		Body:      rec.Body,
		Tags:      tags,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toRecipeModel(r domain.Recipe) recipeModel {
	return recipeModel{
		RecipeID:  r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Body:      r.Body,
		Tags:      strings.Join(r.Tags, ","),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
