// Package users provides persistence for User records.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/dbx"
	"github.com/ovenbird/recipebook/internal/server/models"
)

// Repository is the persistence contract for User records.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateName(ctx context.Context, id string, name string) error
	SetImage(ctx context.Context, id string, imageKey string, profileURL string) error
	Delete(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, subject, name, email, picture_url, profile_url, image_key, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Subject, &user.Name, &user.Email,
		&user.PictureURL, &user.ProfileURL, &user.ImageKey,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Create inserts a new user keyed by its identity-provider subject.
// A concurrent insert for the same subject surfaces as ErrorAlreadyExists so
// the caller can re-read the winner.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (subject, name, email, picture_url, profile_url)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject) DO NOTHING
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Subject, user.Name, user.Email, user.PictureURL, user.ProfileURL).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subject = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, subject))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateName(ctx context.Context, id string, name string) error {
	query := `UPDATE users SET name = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, name)
}

func (r *PostgresRepository) SetImage(ctx context.Context, id string, imageKey string, profileURL string) error {
	query := `UPDATE users SET image_key = $2, profile_url = $3, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, imageKey, profileURL)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
