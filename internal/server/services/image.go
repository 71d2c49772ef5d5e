package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/logging"
	"github.com/ovenbird/recipebook/internal/server/blob"
	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/repositories/repomanager"
)

// MaxImageBytes is the upload size cap; larger files are rejected before any
// decoding happens.
const MaxImageBytes = 8_000_000

// imageSize is the edge length of the normalized square canvas.
const imageSize = 250

var allowedImageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// ImageService validates, normalizes and binds uploaded images to users and
// recipes. Accepted images are re-encoded to a 250x250 JPEG and stored in the
// blob store; the owning record keeps only the key.
type ImageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blob.Store
	logger      logging.Logger

	// defaultImage is served for recipes that exist but have no image set.
	// Generated once at construction instead of shipping a binary asset.
	defaultImage []byte
}

func NewImageService(db *sql.DB, m repomanager.RepositoryManager, store blob.Store, logger logging.Logger) (*ImageService, error) {

	placeholder := imaging.New(imageSize, imageSize, color.NRGBA{R: 0xee, G: 0xe6, B: 0xd8, A: 0xff})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, placeholder, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("default image: %w", err)
	}

	return &ImageService{
		db:           db,
		repomanager:  m,
		store:        store,
		logger:       logger.With("module", "image_service"),
		defaultImage: buf.Bytes(),
	}, nil
}

// validateUpload rejects before any resize work: extension must be one of
// png/jpg/jpeg (case-insensitive) and the payload must fit the size cap.
func validateUpload(filename string, size int) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return fmt.Errorf("%w: please upload an image (png, jpg or jpeg)", common.ErrorValidation)
	}
	if size > MaxImageBytes {
		return fmt.Errorf("%w: image exceeds %d bytes", common.ErrorValidation, MaxImageBytes)
	}
	return nil
}

// normalize decodes the upload and re-encodes it to the canonical form:
// a 250x250 center-cropped JPEG.
func normalize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image", common.ErrorValidation)
	}

	resized := imaging.Fill(img, imageSize, imageSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// AttachUserImage binds an uploaded image to the user's profile and returns
// the URL it is served from.
func (s *ImageService) AttachUserImage(ctx context.Context, user *models.User, filename string, data []byte) (string, error) {

	if err := validateUpload(filename, len(data)); err != nil {
		return "", err
	}

	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("users/%s/%s.jpg", user.ID, uuid.New())
	if err := s.store.Put(ctx, key, normalized, "image/jpeg"); err != nil {
		return "", err
	}

	profileURL := "/user/" + user.ID + "/image"
	if err := s.repomanager.Users(s.db).SetImage(ctx, user.ID, key, profileURL); err != nil {
		return "", err
	}

	s.deleteOldBlob(ctx, user.ImageKey)

	return profileURL, nil
}

// RemoveUserImage clears the uploaded image and restores the
// identity-provider picture URL captured at first sign-in.
func (s *ImageService) RemoveUserImage(ctx context.Context, user *models.User) error {

	if err := s.repomanager.Users(s.db).SetImage(ctx, user.ID, "", user.PictureURL); err != nil {
		return err
	}

	s.deleteOldBlob(ctx, user.ImageKey)

	return nil
}

// UserImage returns the stored profile image. A missing user and a user
// without an image are both ErrorNotFound; there is no fallback here.
func (s *ImageService) UserImage(ctx context.Context, userID string) ([]byte, error) {

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.ImageKey == "" {
		return nil, common.ErrorNotFound
	}

	return s.store.Get(ctx, user.ImageKey)
}

// AttachRecipeImage binds an uploaded image to a recipe; owner only.
func (s *ImageService) AttachRecipeImage(ctx context.Context, userID string, recipeID string, filename string, data []byte) (string, error) {

	recipe, err := s.repomanager.Recipes(s.db).GetByID(ctx, recipeID)
	if err != nil {
		return "", err
	}
	if recipe.OwnerID != userID {
		return "", common.ErrorUnauthorized
	}

	if err := validateUpload(filename, len(data)); err != nil {
		return "", err
	}

	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("recipes/%s/%s.jpg", recipe.ID, uuid.New())
	if err := s.store.Put(ctx, key, normalized, "image/jpeg"); err != nil {
		return "", err
	}

	if err := s.repomanager.Recipes(s.db).SetImage(ctx, recipe.ID, key); err != nil {
		return "", err
	}

	s.deleteOldBlob(ctx, recipe.ImageKey)

	return "/recipe/" + recipe.ID + "/image", nil
}

// RecipeImage returns the recipe's image, falling back to the default asset
// when the recipe exists but has no image set. Only a missing recipe is
// ErrorNotFound.
func (s *ImageService) RecipeImage(ctx context.Context, recipeID string) ([]byte, error) {

	recipe, err := s.repomanager.Recipes(s.db).GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	if recipe.ImageKey == "" {
		return s.defaultImage, nil
	}

	return s.store.Get(ctx, recipe.ImageKey)
}

// deleteOldBlob removes a superseded blob. Best effort: the record already
// points elsewhere, so a failed delete only leaks an object.
func (s *ImageService) deleteOldBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "failed to delete superseded blob", "key", key, "error", err.Error())
	}
}
