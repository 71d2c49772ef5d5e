package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/services"
)

// recipeView is the recipe record as served to its owner.
type recipeView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Ingredients []string  `json:"ingredients"`
	Method      []string  `json:"method"`
	Notes       []string  `json:"notes"`
	PrepTime    int       `json:"prepTime"`
	Servings    int       `json:"servings"`
	IsPublic    bool      `json:"isPublic"`
	AuthorName  string    `json:"authorName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRecipeView(recipe *models.Recipe) *recipeView {
	return &recipeView{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Ingredients: recipe.Ingredients,
		Method:      recipe.Method,
		Notes:       recipe.Notes,
		PrepTime:    recipe.PrepTime,
		Servings:    recipe.Servings,
		IsPublic:    recipe.IsPublic,
		AuthorName:  recipe.AuthorName,
		CreatedAt:   recipe.CreatedAt,
		UpdatedAt:   recipe.UpdatedAt,
	}
}

// ownRecipeSummary is the field-limited projection for the owner's listing.
type ownRecipeSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PrepTime int    `json:"prepTime"`
	Servings int    `json:"servings"`
	IsPublic bool   `json:"isPublic"`
}

func (s *Server) handleRecipeCreate(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	input := &services.RecipeInput{}
	if err := decodeBody(w, r, input); err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	recipe, err := s.recipes.Create(r.Context(), user, input)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeView(recipe))
}

func (s *Server) handleRecipeList(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	recipes, err := s.recipes.ListOwn(r.Context(), user.ID)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	view := []ownRecipeSummary{}
	for _, recipe := range recipes {
		view = append(view, ownRecipeSummary{
			ID:       recipe.ID,
			Name:     recipe.Name,
			PrepTime: recipe.PrepTime,
			Servings: recipe.Servings,
			IsPublic: recipe.IsPublic,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRecipeGet(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	recipe, err := s.recipes.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeView(recipe))
}

// handleRecipePublic serves the anonymous-readable projection; an attached
// identity only adds the subscribed flag.
func (s *Server) handleRecipePublic(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	viewerID := ""
	if claim := claimFrom(r.Context()); claim != nil {
		if viewer, err := s.users.GetByClaim(r.Context(), claim); err == nil {
			viewerID = viewer.ID
		}
	}

	view, err := s.recipes.GetPublic(r.Context(), viewerID, id)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRecipeUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	var fields map[string]json.RawMessage
	if err := decodeBody(w, r, &fields); err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	recipe, err := s.recipes.Update(r.Context(), user.ID, id, fields)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeView(recipe))
}

func (s *Server) handleRecipeDelete(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	if err := s.recipes.Delete(r.Context(), user.ID, id); err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecipeImageUpload(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	filename, data, err := readUpload(w, r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	url, err := s.images.AttachRecipeImage(r.Context(), user.ID, id, filename, data)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}

func (s *Server) handleRecipeImage(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	data, err := s.images.RecipeImage(r.Context(), id)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubscription(w, r, s.recipes.Subscribe)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubscription(w, r, s.recipes.Unsubscribe)
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID string, recipeID string) error) {

	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	if err := op(r.Context(), user.ID, id); err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	recipes, err := s.recipes.ListSubscriptions(r.Context(), user.ID)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	view := []ownRecipeSummary{}
	for _, recipe := range recipes {
		view = append(view, ownRecipeSummary{
			ID:       recipe.ID,
			Name:     recipe.Name,
			PrepTime: recipe.PrepTime,
			Servings: recipe.Servings,
			IsPublic: recipe.IsPublic,
		})
	}
	writeJSON(w, http.StatusOK, view)
}
