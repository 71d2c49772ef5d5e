// Package services contains server-side business logic. This file implements
// UserService: lazy account creation from verified identity claims, profile
// updates with their denormalization side effects, and cascading deletion.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/dbx"
	"github.com/ovenbird/recipebook/internal/server/auth"
	"github.com/ovenbird/recipebook/internal/server/models"
	"github.com/ovenbird/recipebook/internal/server/repositories/repomanager"
)

// userUpdatableFields is the allow-list for self-service profile updates.
var userUpdatableFields = map[string]struct{}{
	"name": {},
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

// UpsertFromClaim returns the User for the claim's subject, creating it on
// first contact. The second return reports whether a record was created.
// An existing record is returned unchanged.
func (s *UserService) UpsertFromClaim(ctx context.Context, claim *auth.Claim) (*models.User, bool, error) {

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetBySubject(ctx, claim.Subject)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, err
	}

	user, err = repo.Create(ctx, &models.User{
		Subject:    claim.Subject,
		Name:       claim.Name,
		Email:      claim.Email,
		PictureURL: claim.Picture,
		ProfileURL: claim.Picture,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// lost the first-request race; the stored record wins
			user, err = repo.GetBySubject(ctx, claim.Subject)
			return user, false, err
		}
		return nil, false, err
	}

	return user, true, nil
}

// GetByClaim maps a verified identity to its local User record. A valid
// identity without a record is ErrorNotFound, which callers must surface as
// its own branch rather than as an authorization failure.
func (s *UserService) GetByClaim(ctx context.Context, claim *auth.Claim) (*models.User, error) {
	return s.repomanager.Users(s.db).GetBySubject(ctx, claim.Subject)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByEmail(ctx, email)
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// PublicProfile returns a user together with their public recipes.
func (s *UserService) PublicProfile(ctx context.Context, id string) (*models.User, []*models.Recipe, error) {

	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	recipes, err := s.repomanager.Recipes(s.db).ListPublicByOwner(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return user, recipes, nil
}

// Update applies a self-service profile update. Validation is all-or-nothing:
// any submitted field outside the allow-list rejects the whole update. A name
// change also resynchronizes the denormalized author name on every owned
// recipe, inside the same transaction.
func (s *UserService) Update(ctx context.Context, id string, fields map[string]json.RawMessage) (*models.User, error) {

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty update", common.ErrorValidation)
	}

	for key := range fields {
		if _, ok := userUpdatableFields[key]; !ok {
			return nil, fmt.Errorf("%w: field %q is not updatable", common.ErrorValidation, key)
		}
	}

	if raw, ok := fields["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || name == "" {
			return nil, fmt.Errorf("%w: invalid name", common.ErrorValidation)
		}
		if err := s.renameAndResync(ctx, id, name); err != nil {
			return nil, err
		}
	}

	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// renameAndResync updates the user's display name and rewrites the cached
// author name on all owned recipes atomically.
func (s *UserService) renameAndResync(ctx context.Context, id string, name string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdateName(ctx, id, name); err != nil {
			return err
		}
		return s.repomanager.Recipes(tx).SetAuthorName(ctx, id, name)
	})
}

// DeleteCascade removes the user and every recipe they own in one
// transaction, so orphaned recipes can never remain.
func (s *UserService) DeleteCascade(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Recipes(tx).DeleteByOwner(ctx, id); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, id)
	})
}
