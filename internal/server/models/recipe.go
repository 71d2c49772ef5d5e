package models

import "time"

// Recipe is a recipe document owned by exactly one user.
//
// AuthorName is a denormalized copy of the owner's display name, refreshed
// whenever the owner renames themselves. Subscribers holds the ids of users
// following this recipe; membership is a set, enforced on insert.
type Recipe struct {
	ID      string
	OwnerID string

	Name        string
	Ingredients []string
	Method      []string
	Notes       []string
	PrepTime    int
	Servings    int
	IsPublic    bool

	AuthorName string

	// ImageKey is the blob-store key of the attached image, empty when unset.
	ImageKey string

	Subscribers []string

	CreatedAt time.Time
	UpdatedAt time.Time
}
