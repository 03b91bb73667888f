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

type ReservationRepo struct {
	db db.DB
}

func NewReservationRepo(db db.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) Create(ctx context.Context, resv *repository.Reservation) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO reservations (
            id, customer_id, staff_id, category_id, item_ids, price, start_date, end_date, state, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, resv.ID, resv.CustomerID, resv.StaffID, resv.CategoryID, resv.ItemIDs, resv.Price,
		resv.StartDate, resv.EndDate, resv.State, resv.CreatedAt, resv.UpdatedAt)
	return err
}

func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*repository.Reservation, error) {
	var resv repository.Reservation
	err := r.db.Get(ctx, &resv, "SELECT * FROM reservations WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &resv, nil
}

func (r *ReservationRepo) Update(ctx context.Context, resv *repository.Reservation) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE reservations
        SET
            customer_id = $1,
            staff_id = $2,
            category_id = $3,
            item_ids = $4,
            price = $5,
            start_date = $6,
            end_date = $7,
            state = $8,
            updated_at = $9
        WHERE id = $10
    `, resv.CustomerID, resv.StaffID, resv.CategoryID, resv.ItemIDs, resv.Price,
		resv.StartDate, resv.EndDate, resv.State, resv.UpdatedAt, resv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

// UpdateState performs a conditional transition: the row is only touched
// when its current state is one of from. The boolean reports whether this
// caller won the transition, which serializes concurrent terminates.
func (r *ReservationRepo) UpdateState(ctx context.Context, id string, to repository.ReservationState, from ...repository.ReservationState) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, `
        UPDATE reservations
        SET state = $1, updated_at = $2
        WHERE id = $3 AND state = ANY($4)
    `, to, time.Now().UTC(), id, states)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM reservations WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *ReservationRepo) List(ctx context.Context, filter repository.ReservationFilter) ([]*repository.Reservation, error) {
	query := "SELECT * FROM reservations WHERE 1=1"
	args := []interface{}{}

	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if filter.StaffID != "" {
		args = append(args, filter.StaffID)
		query += fmt.Sprintf(" AND staff_id = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND start_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND end_date <= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	var resvs []*repository.Reservation
	err := r.db.Select(ctx, &resvs, query, args...)
	return resvs, err
}

// GetActiveOverlapping returns every non-terminal reservation referencing
// the item whose interval intersects [start, end] with inclusive endpoints.
// A nil end means an open-ended window [start, inf). excludeID, when not
// empty, removes the reservation's own prior record from the check.
func (r *ReservationRepo) GetActiveOverlapping(ctx context.Context, itemID string, start time.Time, end *time.Time, excludeID string) ([]*repository.Reservation, error) {
	query := `
        SELECT * FROM reservations
        WHERE $1 = ANY(item_ids)
          AND state NOT IN ('cancelled', 'terminated')
          AND end_date >= $2
    `
	args := []interface{}{itemID, start}

	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND start_date <= $%d", len(args))
	}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}

	query += " ORDER BY start_date ASC"

	var resvs []*repository.Reservation
	err := r.db.Select(ctx, &resvs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get overlapping reservations: %w", err)
	}
	return resvs, nil
}

// GetOverdue returns reservations the delay detector must process: still
// in_progress past their end date, or already delayed. The state predicate
// doubles as the idempotency guard for overlapping scheduler runs.
func (r *ReservationRepo) GetOverdue(ctx context.Context, now time.Time) ([]*repository.Reservation, error) {
	var resvs []*repository.Reservation
	err := r.db.Select(ctx, &resvs, `
        SELECT * FROM reservations
        WHERE (end_date <= $1 AND state = 'in_progress') OR state = 'delayed'
        ORDER BY end_date ASC
    `, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue reservations: %w", err)
	}
	return resvs, nil
}

func (r *ReservationRepo) GetAllActive(ctx context.Context) ([]*repository.Reservation, error) {
	var resvs []*repository.Reservation
	err := r.db.Select(ctx, &resvs, `
        SELECT * FROM reservations
        WHERE state NOT IN ('cancelled', 'terminated')
        ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to get active reservations: %w", err)
	}
	return resvs, nil
}

// CountByStaff returns reservation counts keyed by staff id, used for
// round-robin assignment. Staff with no reservations are absent.
func (r *ReservationRepo) CountByStaff(ctx context.Context) (map[string]int, error) {
	var rows []*struct {
		StaffID string `db:"staff_id"`
		Count   int    `db:"count"`
	}
	err := r.db.Select(ctx, &rows, `
        SELECT staff_id, COUNT(*) AS count FROM reservations GROUP BY staff_id
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations by staff: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.StaffID] = row.Count
	}
	return counts, nil
}

// ExistsWithItem reports whether any reservation still references the item.
// Items are never deleted while referenced.
func (r *ReservationRepo) ExistsWithItem(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := r.db.ExecQueryRow(ctx, `
        SELECT EXISTS(SELECT 1 FROM reservations WHERE $1 = ANY(item_ids))
    `, itemID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
