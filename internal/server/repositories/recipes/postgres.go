// Package recipes provides persistence for Recipe records, including the
// subscriber relation stored on each recipe.
package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/dbx"
	"github.com/ovenbird/recipebook/internal/server/models"
)

// Patch carries the fields a recipe update may change. Nil fields are left
// untouched; the whole patch is applied in a single UPDATE.
type Patch struct {
	Name        *string
	Ingredients *[]string
	Method      *[]string
	Notes       *[]string
	IsPublic    *bool
	PrepTime    *int
	Servings    *int
}

// Repository is the persistence contract for Recipe records.
type Repository interface {
	Create(ctx context.Context, recipe *models.Recipe) (*models.Recipe, error)
	GetByID(ctx context.Context, id string) (*models.Recipe, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error)
	ListPublicByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error)
	ListBySubscriber(ctx context.Context, userID string) ([]*models.Recipe, error)
	Update(ctx context.Context, id string, patch *Patch) error
	SetAuthorName(ctx context.Context, ownerID string, name string) error
	SetImage(ctx context.Context, id string, imageKey string) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) error
	Subscribe(ctx context.Context, id string, userID string) error
	Unsubscribe(ctx context.Context, id string, userID string) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recipeColumns = `id, owner_id, name, ingredients::text, method::text, notes::text,
	prep_time, servings, is_public, author_name, image_key,
	array_to_json(subscribers)::text, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (*models.Recipe, error) {
	recipe := &models.Recipe{}
	var ingredients, method, notes, subscribers []byte

	err := row.Scan(&recipe.ID, &recipe.OwnerID, &recipe.Name,
		&ingredients, &method, &notes,
		&recipe.PrepTime, &recipe.Servings, &recipe.IsPublic,
		&recipe.AuthorName, &recipe.ImageKey,
		&subscribers, &recipe.CreatedAt, &recipe.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	for _, col := range []struct {
		raw []byte
		out *[]string
	}{
		{ingredients, &recipe.Ingredients},
		{method, &recipe.Method},
		{notes, &recipe.Notes},
		{subscribers, &recipe.Subscribers},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.out); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
	}

	return recipe, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return string(b), nil
}

func (r *PostgresRepository) Create(ctx context.Context, recipe *models.Recipe) (*models.Recipe, error) {

	ingredients, err := marshalList(recipe.Ingredients)
	if err != nil {
		return nil, err
	}
	method, err := marshalList(recipe.Method)
	if err != nil {
		return nil, err
	}
	notes, err := marshalList(recipe.Notes)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO recipes (owner_id, name, ingredients, method, notes, prep_time, servings, is_public, author_name)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		recipe.OwnerID, recipe.Name, ingredients, method, notes,
		recipe.PrepTime, recipe.Servings, recipe.IsPublic, recipe.AuthorName).
		Scan(&recipe.ID, &recipe.CreatedAt, &recipe.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return recipe, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id = $1`
	return scanRecipe(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]*models.Recipe, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.Recipe{}
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE owner_id = $1 ORDER BY created_at`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListPublicByOwner(ctx context.Context, ownerID string) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE owner_id = $1 AND is_public ORDER BY created_at`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListBySubscriber(ctx context.Context, userID string) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE $1::uuid = ANY(subscribers) ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// Update applies all non-nil patch fields in one atomic statement, so
// concurrent patches cannot interleave at the field level.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch *Patch) error {

	var ingredients, method, notes any
	for _, col := range []struct {
		in  *[]string
		out *any
	}{
		{patch.Ingredients, &ingredients},
		{patch.Method, &method},
		{patch.Notes, &notes},
	} {
		if col.in == nil {
			continue
		}
		s, err := marshalList(*col.in)
		if err != nil {
			return err
		}
		*col.out = s
	}

	query :=
		`UPDATE recipes SET
			name        = COALESCE($2::text, name),
			ingredients = COALESCE($3::jsonb, ingredients),
			method      = COALESCE($4::jsonb, method),
			notes       = COALESCE($5::jsonb, notes),
			is_public   = COALESCE($6::boolean, is_public),
			prep_time   = COALESCE($7::integer, prep_time),
			servings    = COALESCE($8::integer, servings),
			updated_at  = now()
		 WHERE id = $1
		 `

	return r.exec(ctx, query, id, patch.Name, ingredients, method, notes,
		patch.IsPublic, patch.PrepTime, patch.Servings)
}

func (r *PostgresRepository) SetAuthorName(ctx context.Context, ownerID string, name string) error {
	query := `UPDATE recipes SET author_name = $2, updated_at = now() WHERE owner_id = $1`
	res, err := r.db.ExecContext(ctx, query, ownerID, name)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	// zero owned recipes is fine
	_, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetImage(ctx context.Context, id string, imageKey string) error {
	query := `UPDATE recipes SET image_key = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, imageKey)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM recipes WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	query := `DELETE FROM recipes WHERE owner_id = $1`
	_, err := r.db.ExecContext(ctx, query, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Subscribe adds userID to the recipe's subscriber set. The guard keeps set
// semantics on insert; subscribing twice leaves a single entry and still
// succeeds. A missing or private recipe yields ErrorNotFound.
func (r *PostgresRepository) Subscribe(ctx context.Context, id string, userID string) error {
	query :=
		`UPDATE recipes SET
			subscribers = CASE
				WHEN $2::uuid = ANY(subscribers) THEN subscribers
				ELSE array_append(subscribers, $2::uuid)
			END,
			updated_at = now()
		 WHERE id = $1 AND is_public
		 `
	return r.exec(ctx, query, id, userID)
}

// Unsubscribe removes every occurrence of userID from the subscriber set.
// Removing an absent id is a successful no-op; a missing or private recipe
// yields ErrorNotFound.
func (r *PostgresRepository) Unsubscribe(ctx context.Context, id string, userID string) error {
	query :=
		`UPDATE recipes SET
			subscribers = array_remove(subscribers, $2::uuid),
			updated_at = now()
		 WHERE id = $1 AND is_public
		 `
	return r.exec(ctx, query, id, userID)
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
