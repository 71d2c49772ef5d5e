package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/dbx"
	"github.com/ovenbird/recipebook/internal/server/models"
	recipesrepo "github.com/ovenbird/recipebook/internal/server/repositories/recipes"
	usersrepo "github.com/ovenbird/recipebook/internal/server/repositories/users"
)

// memStore is an in-memory stand-in for the two tables, shared by the fake
// repositories so multi-repo flows (cascade, resync) can be observed.
type memStore struct {
	users   map[string]*models.User
	recipes map[string]*models.Recipe
	nextID  int

	failWith error // when set, every call fails with this error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*models.User{},
		recipes: map[string]*models.Recipe{},
	}
}

func (m *memStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

type fakeUsersRepo struct{ m *memStore }

func (f *fakeUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if f.m.failWith != nil {
		return nil, f.m.failWith
	}
	for _, u := range f.m.users {
		if u.Subject == user.Subject {
			return nil, common.ErrorAlreadyExists
		}
	}
	user.ID = f.m.genID()
	f.m.users[user.ID] = user
	return user, nil
}

func (f *fakeUsersRepo) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	if f.m.failWith != nil {
		return nil, f.m.failWith
	}
	for _, u := range f.m.users {
		if u.Subject == subject {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.m.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) UpdateName(ctx context.Context, id string, name string) error {
	u, ok := f.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Name = name
	return nil
}

func (f *fakeUsersRepo) SetImage(ctx context.Context, id string, imageKey string, profileURL string) error {
	u, ok := f.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.ImageKey = imageKey
	u.ProfileURL = profileURL
	return nil
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.m.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.m.users, id)
	return nil
}

type fakeRecipesRepo struct{ m *memStore }

func (f *fakeRecipesRepo) Create(ctx context.Context, recipe *models.Recipe) (*models.Recipe, error) {
	if f.m.failWith != nil {
		return nil, f.m.failWith
	}
	recipe.ID = f.m.genID()
	f.m.recipes[recipe.ID] = recipe
	return recipe, nil
}

func (f *fakeRecipesRepo) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	if f.m.failWith != nil {
		return nil, f.m.failWith
	}
	if r, ok := f.m.recipes[id]; ok {
		return r, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRecipesRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error) {
	result := []*models.Recipe{}
	for _, r := range f.m.recipes {
		if r.OwnerID == ownerID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (f *fakeRecipesRepo) ListPublicByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error) {
	result := []*models.Recipe{}
	for _, r := range f.m.recipes {
		if r.OwnerID == ownerID && r.IsPublic {
			result = append(result, r)
		}
	}
	return result, nil
}

func (f *fakeRecipesRepo) ListBySubscriber(ctx context.Context, userID string) ([]*models.Recipe, error) {
	result := []*models.Recipe{}
	for _, r := range f.m.recipes {
		for _, s := range r.Subscribers {
			if s == userID {
				result = append(result, r)
				break
			}
		}
	}
	return result, nil
}

func (f *fakeRecipesRepo) Update(ctx context.Context, id string, patch *recipesrepo.Patch) error {
	r, ok := f.m.recipes[id]
	if !ok {
		return common.ErrorNotFound
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Ingredients != nil {
		r.Ingredients = *patch.Ingredients
	}
	if patch.Method != nil {
		r.Method = *patch.Method
	}
	if patch.Notes != nil {
		r.Notes = *patch.Notes
	}
	if patch.IsPublic != nil {
		r.IsPublic = *patch.IsPublic
	}
	if patch.PrepTime != nil {
		r.PrepTime = *patch.PrepTime
	}
	if patch.Servings != nil {
		r.Servings = *patch.Servings
	}
	return nil
}

func (f *fakeRecipesRepo) SetAuthorName(ctx context.Context, ownerID string, name string) error {
	for _, r := range f.m.recipes {
		if r.OwnerID == ownerID {
			r.AuthorName = name
		}
	}
	return nil
}

func (f *fakeRecipesRepo) SetImage(ctx context.Context, id string, imageKey string) error {
	r, ok := f.m.recipes[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.ImageKey = imageKey
	return nil
}

func (f *fakeRecipesRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.m.recipes[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.m.recipes, id)
	return nil
}

func (f *fakeRecipesRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	for id, r := range f.m.recipes {
		if r.OwnerID == ownerID {
			delete(f.m.recipes, id)
		}
	}
	return nil
}

func (f *fakeRecipesRepo) Subscribe(ctx context.Context, id string, userID string) error {
	r, ok := f.m.recipes[id]
	if !ok || !r.IsPublic {
		return common.ErrorNotFound
	}
	for _, s := range r.Subscribers {
		if s == userID {
			return nil
		}
	}
	r.Subscribers = append(r.Subscribers, userID)
	return nil
}

func (f *fakeRecipesRepo) Unsubscribe(ctx context.Context, id string, userID string) error {
	r, ok := f.m.recipes[id]
	if !ok || !r.IsPublic {
		return common.ErrorNotFound
	}
	kept := r.Subscribers[:0]
	for _, s := range r.Subscribers {
		if s != userID {
			kept = append(kept, s)
		}
	}
	r.Subscribers = kept
	return nil
}

type fakeRepoManager struct{ m *memStore }

func (f *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository {
	return &fakeUsersRepo{m: f.m}
}

func (f *fakeRepoManager) Recipes(db dbx.DBTX) recipesrepo.Repository {
	return &fakeRecipesRepo{m: f.m}
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

// newSQLMockDB returns a db whose Begin/Commit succeed, for flows that run
// through dbx.WithTx over the fakes.
func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}
