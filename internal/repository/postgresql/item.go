package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type ItemRepo struct {
	db db.DB
}

func NewItemRepo(db db.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

func (r *ItemRepo) Create(ctx context.Context, item *repository.Item) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO items (id, name, category_id, base_price, condition, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, item.ID, item.Name, item.CategoryID, item.BasePrice, item.Condition, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *ItemRepo) GetByID(ctx context.Context, id string) (*repository.Item, error) {
	var item repository.Item
	err := r.db.Get(ctx, &item, "SELECT * FROM items WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetByIDs returns the items for the given ids. Callers are expected to
// compare lengths to detect unknown ids.
func (r *ItemRepo) GetByIDs(ctx context.Context, ids []string) ([]*repository.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*repository.Item
	err := r.db.Select(ctx, &items, "SELECT * FROM items WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get items by ids: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) GetByCategory(ctx context.Context, categoryID string) ([]*repository.Item, error) {
	var items []*repository.Item
	err := r.db.Select(ctx, &items, `
        SELECT * FROM items
        WHERE category_id = $1
        ORDER BY created_at ASC
    `, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items by category: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) List(ctx context.Context) ([]*repository.Item, error) {
	var items []*repository.Item
	err := r.db.Select(ctx, &items, "SELECT * FROM items ORDER BY created_at ASC")
	return items, err
}

func (r *ItemRepo) Update(ctx context.Context, item *repository.Item) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE items
        SET name = $1, category_id = $2, base_price = $3, condition = $4, updated_at = $5
        WHERE id = $6
    `, item.Name, item.CategoryID, item.BasePrice, item.Condition, item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *ItemRepo) UpdateCondition(ctx context.Context, id string, condition repository.Condition) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE items SET condition = $1, updated_at = $2 WHERE id = $3
    `, condition, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

// RestoreCondition resets every listed item to perfect. Used by the
// maintenance closer after a repair window elapses.
func (r *ItemRepo) RestoreCondition(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        UPDATE items SET condition = $1, updated_at = $2 WHERE id = ANY($3)
    `, repository.ConditionPerfect, time.Now().UTC(), ids)
	return err
}

func (r *ItemRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM items WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
