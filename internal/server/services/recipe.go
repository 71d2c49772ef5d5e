package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/repositories/recipes"
	"github.com/ovenbird/recipebook/internal/server/repositories/repomanager"
)

// recipeUpdatableFields is the allow-list for recipe updates. Anything else
// in a submitted patch (owner, authorName, subscribers, ...) rejects the
// whole update.
var recipeUpdatableFields = map[string]struct{}{
	"name":        {},
	"ingredients": {},
	"method":      {},
	"notes":       {},
	"isPublic":    {},
	"prepTime":    {},
	"servings":    {},
}

// RecipeInput carries the caller-supplied fields of a new recipe.
type RecipeInput struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
	Method      []string `json:"method"`
	Notes       []string `json:"notes"`
	PrepTime    int      `json:"prepTime"`
	Servings    int      `json:"servings"`
	IsPublic    bool     `json:"isPublic"`
}

// PublicRecipe is the projection served on the anonymous-readable path.
// Notes, the raw subscriber list and the image are stripped; Subscribed is
// present only when the request carried an identity.
type PublicRecipe struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
	Method      []string `json:"method"`
	PrepTime    int      `json:"prepTime"`
	Servings    int      `json:"servings"`
	IsPublic    bool     `json:"isPublic"`
	AuthorName  string   `json:"authorName"`
	Subscribed  *bool    `json:"subscribed,omitempty"`
}

type RecipeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewRecipeService(db *sql.DB, m repomanager.RepositoryManager) *RecipeService {
	return &RecipeService{db: db, repomanager: m}
}

func (s *RecipeService) Create(ctx context.Context, owner *models.User, input *RecipeInput) (*models.Recipe, error) {

	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	recipe := &models.Recipe{
		OwnerID:     owner.ID,
		Name:        input.Name,
		Ingredients: input.Ingredients,
		Method:      input.Method,
		Notes:       input.Notes,
		PrepTime:    input.PrepTime,
		Servings:    input.Servings,
		IsPublic:    input.IsPublic,
		AuthorName:  owner.Name,
	}

	return s.repomanager.Recipes(s.db).Create(ctx, recipe)
}

func (s *RecipeService) ListOwn(ctx context.Context, ownerID string) ([]*models.Recipe, error) {
	return s.repomanager.Recipes(s.db).ListByOwner(ctx, ownerID)
}

// Get returns a recipe for an authenticated caller: allowed when the caller
// owns it or it is public, ErrorUnauthorized otherwise.
func (s *RecipeService) Get(ctx context.Context, userID string, recipeID string) (*models.Recipe, error) {

	recipe, err := s.repomanager.Recipes(s.db).GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	if recipe.OwnerID != userID && !recipe.IsPublic {
		return nil, common.ErrorUnauthorized
	}

	return recipe, nil
}

// GetPublic serves the anonymous-readable projection. Private recipes are
// never visible here, not even to their owner. viewerID may be empty
// (anonymous); when set, the Subscribed flag is computed against it.
func (s *RecipeService) GetPublic(ctx context.Context, viewerID string, recipeID string) (*PublicRecipe, error) {

	recipe, err := s.repomanager.Recipes(s.db).GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	if !recipe.IsPublic {
		return nil, common.ErrorNotFound
	}

	view := &PublicRecipe{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Ingredients: recipe.Ingredients,
		Method:      recipe.Method,
		PrepTime:    recipe.PrepTime,
		Servings:    recipe.Servings,
		IsPublic:    recipe.IsPublic,
		AuthorName:  recipe.AuthorName,
	}

	if viewerID != "" {
		subscribed := false
		for _, id := range recipe.Subscribers {
			if id == viewerID {
				subscribed = true
				break
			}
		}
		view.Subscribed = &subscribed
	}

	return view, nil
}

// Update applies an owner-only, allow-listed patch. Validation is
// all-or-nothing: one disallowed or malformed field rejects the entire
// update and nothing is applied.
func (s *RecipeService) Update(ctx context.Context, userID string, recipeID string, fields map[string]json.RawMessage) (*models.Recipe, error) {

	repo := s.repomanager.Recipes(s.db)

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty update", common.ErrorValidation)
	}

	if _, err := s.getOwned(ctx, userID, recipeID); err != nil {
		return nil, err
	}

	patch := &recipes.Patch{}
	for key, raw := range fields {
		if _, ok := recipeUpdatableFields[key]; !ok {
			return nil, fmt.Errorf("%w: field %q is not updatable", common.ErrorValidation, key)
		}

		var target any
		switch key {
		case "name":
			target = &patch.Name
		case "ingredients":
			target = &patch.Ingredients
		case "method":
			target = &patch.Method
		case "notes":
			target = &patch.Notes
		case "isPublic":
			target = &patch.IsPublic
		case "prepTime":
			target = &patch.PrepTime
		case "servings":
			target = &patch.Servings
		}

		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("%w: invalid value for %q", common.ErrorValidation, key)
		}
	}

	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", common.ErrorValidation)
	}

	if err := repo.Update(ctx, recipeID, patch); err != nil {
		return nil, err
	}

	return repo.GetByID(ctx, recipeID)
}

// Delete removes a recipe; owner only.
func (s *RecipeService) Delete(ctx context.Context, userID string, recipeID string) error {

	if _, err := s.getOwned(ctx, userID, recipeID); err != nil {
		return err
	}

	return s.repomanager.Recipes(s.db).Delete(ctx, recipeID)
}

// Subscribe adds the user to a public recipe's subscriber set. A missing or
// private recipe is ErrorNotFound, never a silent no-op.
func (s *RecipeService) Subscribe(ctx context.Context, userID string, recipeID string) error {
	return s.repomanager.Recipes(s.db).Subscribe(ctx, recipeID, userID)
}

// Unsubscribe removes the user from the subscriber set; unsubscribing while
// not subscribed still succeeds.
func (s *RecipeService) Unsubscribe(ctx context.Context, userID string, recipeID string) error {
	return s.repomanager.Recipes(s.db).Unsubscribe(ctx, recipeID, userID)
}

// ListSubscriptions returns every recipe whose subscriber set contains the
// user.
func (s *RecipeService) ListSubscriptions(ctx context.Context, userID string) ([]*models.Recipe, error) {
	return s.repomanager.Recipes(s.db).ListBySubscriber(ctx, userID)
}

func (s *RecipeService) getOwned(ctx context.Context, userID string, recipeID string) (*models.Recipe, error) {
	recipe, err := s.repomanager.Recipes(s.db).GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe.OwnerID != userID {
		return nil, common.ErrorUnauthorized
	}
	return recipe, nil
}
