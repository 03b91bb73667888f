package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type CustomerRepo struct {
	db db.DB
}

func NewCustomerRepo(db db.DB) *CustomerRepo {
	return &CustomerRepo{db: db}
}

func (r *CustomerRepo) Create(ctx context.Context, c *repository.Customer) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO customers (id, username, email, created_at)
        VALUES ($1, $2, $3, $4)
    `, c.ID, c.Username, c.Email, c.CreatedAt)
	return err
}

func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*repository.Customer, error) {
	var c repository.Customer
	err := r.db.Get(ctx, &c, "SELECT * FROM customers WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &c, nil
}
