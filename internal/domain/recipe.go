package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recipe is the logical entity served by the cached repository.
type Recipe struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	Body      string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecipeQuery captures the shape of a search so it can be cached under a
// stable key. Zero-valued fields are unconstrained.
type RecipeQuery struct {
	OwnerID       uuid.UUID
	Tag           string
	TitleContains string
	Limit         int
	Offset        int
}
