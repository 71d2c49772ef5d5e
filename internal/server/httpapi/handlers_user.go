package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/services"
)

// userView is the user record as served to its owner.
type userView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileURL string `json:"profileUrl"`
}

func toUserView(user *models.User) *userView {
	return &userView{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		ProfileURL: user.ProfileURL,
	}
}

// recipeSummary is the projection used in listings.
type recipeSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PrepTime int    `json:"prepTime"`
	Servings int    `json:"servings"`
}

// publicProfileView is the anonymous-readable user projection.
type publicProfileView struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Recipes []recipeSummary `json:"recipes"`
}

// currentUser resolves the local User behind the verified claim. A valid
// identity with no local account is ErrorNotFound: the caller has to
// POST /user first.
func (s *Server) currentUser(r *http.Request) (*models.User, error) {
	return s.users.GetByClaim(r.Context(), claimFrom(r.Context()))
}

// pathID returns the named path segment, validated as a UUID.
func pathID(r *http.Request, name string) (string, error) {
	return parseID(r.PathValue(name))
}

func parseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid id", common.ErrorValidation)
	}
	return id.String(), nil
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// maxUploadBytes mirrors the image service cap.
const maxUploadBytes = services.MaxImageBytes

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrorValidation)
	}
	return nil
}

// readUpload pulls the `image` part out of a multipart form. The reader is
// capped just above the service limit so oversize uploads fail the size
// check instead of being silently truncated.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxBodyBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing image upload", common.ErrorValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: cannot read image upload", common.ErrorValidation)
	}

	return header.Filename, data, nil
}

func (s *Server) handleUserUpsert(w http.ResponseWriter, r *http.Request) {
	user, created, err := s.users.UpsertFromClaim(r.Context(), claimFrom(r.Context()))
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toUserView(user))
}

func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByEmail(r.Context(), claimFrom(r.Context()).Email)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	var fields map[string]json.RawMessage
	if err := decodeBody(w, r, &fields); err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	updated, err := s.users.Update(r.Context(), user.ID, fields)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(updated))
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	if err := s.users.DeleteCascade(r.Context(), user.ID); err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	user, recipes, err := s.users.PublicProfile(r.Context(), id)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	view := &publicProfileView{ID: user.ID, Name: user.Name, Recipes: []recipeSummary{}}
	for _, recipe := range recipes {
		view.Recipes = append(view.Recipes, recipeSummary{
			ID:       recipe.ID,
			Name:     recipe.Name,
			PrepTime: recipe.PrepTime,
			Servings: recipe.Servings,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUserImageUpload(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	filename, data, err := readUpload(w, r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	url, err := s.images.AttachUserImage(r.Context(), user, filename, data)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"profileUrl": url})
}

func (s *Server) handleUserImageDelete(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	if err := s.images.RemoveUserImage(r.Context(), user); err != nil {
		writeError(s.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	data, err := s.images.UserImage(r.Context(), id)
	if err != nil {
		writeError(s.logger, w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}
