package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type CategoryRepo struct {
	db db.DB
}

func NewCategoryRepo(db db.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Create(ctx context.Context, category *repository.Category) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO categories (id, name, description, kind, components, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, category.ID, category.Name, category.Description, category.Kind, category.Components, category.CreatedAt)
	return err
}

func (r *CategoryRepo) GetByID(ctx context.Context, id string) (*repository.Category, error) {
	var category repository.Category
	err := r.db.Get(ctx, &category, "SELECT * FROM categories WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]*repository.Category, error) {
	var categories []*repository.Category
	err := r.db.Select(ctx, &categories, "SELECT * FROM categories ORDER BY name ASC")
	return categories, err
}

func (r *CategoryRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
