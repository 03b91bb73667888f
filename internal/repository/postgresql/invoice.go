package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type InvoiceRepo struct {
	db db.DB
}

func NewInvoiceRepo(db db.DB) *InvoiceRepo {
	return &InvoiceRepo{db: db}
}

func (r *InvoiceRepo) Create(ctx context.Context, inv *repository.Invoice) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO invoices (
            id, reservation_id, customer_id, staff_id, price, start_date, end_date, returned_conditions, notes, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, inv.ID, inv.ReservationID, inv.CustomerID, inv.StaffID, inv.Price,
		inv.StartDate, inv.EndDate, inv.ReturnedConditions, inv.Notes, inv.CreatedAt)
	return err
}

func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*repository.Invoice, error) {
	var inv repository.Invoice
	err := r.db.Get(ctx, &inv, "SELECT * FROM invoices WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepo) List(ctx context.Context, filter repository.InvoiceFilter) ([]*repository.Invoice, error) {
	query := "SELECT * FROM invoices WHERE 1=1"
	args := []interface{}{}

	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if filter.StaffID != "" {
		args = append(args, filter.StaffID)
		query += fmt.Sprintf(" AND staff_id = $%d", len(args))
	}
	if filter.ReservationID != "" {
		args = append(args, filter.ReservationID)
		query += fmt.Sprintf(" AND reservation_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	var invs []*repository.Invoice
	err := r.db.Select(ctx, &invs, query, args...)
	return invs, err
}
