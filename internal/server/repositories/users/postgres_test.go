package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/server/models"
)

func newRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func userRows(user *models.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "subject", "name", "email", "picture_url", "profile_url",
		"image_key", "created_at", "updated_at",
	}).AddRow(user.ID, user.Subject, user.Name, user.Email, user.PictureURL,
		user.ProfileURL, user.ImageKey, user.CreatedAt, user.UpdatedAt)
}

func TestCreate_InsertsAndReturnsGenerated(t *testing.T) {
	repo, mock := newRepo(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("google|1", "Alice", "alice@example.com", "http://pic", "http://profile").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("u1", now, now))

	user, err := repo.Create(context.Background(), &models.User{
		Subject:    "google|1",
		Name:       "Alice",
		Email:      "alice@example.com",
		PictureURL: "http://pic",
		ProfileURL: "http://profile",
	})
	assert.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, now, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ConflictIsAlreadyExists(t *testing.T) {
	repo, mock := newRepo(t)

	// ON CONFLICT DO NOTHING returns no row for a duplicate subject
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	_, err := repo.Create(context.Background(), &models.User{Subject: "google|1"})
	assert.True(t, errors.Is(err, common.ErrorAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySubject(t *testing.T) {
	repo, mock := newRepo(t)

	want := &models.User{ID: "u1", Subject: "google|1", Name: "Alice"}
	mock.ExpectQuery(`SELECT .+ FROM users WHERE subject`).
		WithArgs("google|1").
		WillReturnRows(userRows(want))

	user, err := repo.GetBySubject(context.Background(), "google|1")
	assert.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_QueryErrorWrapped(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "u1")
	assert.ErrorContains(t, err, "db error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateName(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE users SET name`).
		WithArgs("u1", "Robert").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateName(context.Background(), "u1", "Robert"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateName_MissingUser(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE users SET name`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateName(context.Background(), "missing", "Robert")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetImage(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE users SET image_key`).
		WithArgs("u1", "users/u1/a.jpg", "/user/u1/image").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SetImage(context.Background(), "u1", "users/u1/a.jpg", "/user/u1/image"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`DELETE FROM users`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
