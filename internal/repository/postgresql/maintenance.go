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

type MaintenanceRepo struct {
	db db.DB
}

func NewMaintenanceRepo(db db.DB) *MaintenanceRepo {
	return &MaintenanceRepo{db: db}
}

func (r *MaintenanceRepo) Create(ctx context.Context, rec *repository.MaintenanceRecord) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO maintenance_records (id, item_ids, start_date, end_date, completed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, rec.ID, rec.ItemIDs, rec.StartDate, rec.EndDate, rec.Completed, rec.CreatedAt)
	return err
}

func (r *MaintenanceRepo) GetByID(ctx context.Context, id string) (*repository.MaintenanceRecord, error) {
	var rec repository.MaintenanceRecord
	err := r.db.Get(ctx, &rec, "SELECT * FROM maintenance_records WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetOpenOverlapping returns incomplete records for the item intersecting
// [start, end] inclusively. Open-ended records (NULL end_date) overlap any
// window at or after their start.
func (r *MaintenanceRepo) GetOpenOverlapping(ctx context.Context, itemID string, start, end time.Time) ([]*repository.MaintenanceRecord, error) {
	var recs []*repository.MaintenanceRecord
	err := r.db.Select(ctx, &recs, `
        SELECT * FROM maintenance_records
        WHERE $1 = ANY(item_ids)
          AND completed = false
          AND start_date <= $3
          AND (end_date IS NULL OR end_date >= $2)
    `, itemID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get open maintenance records: %w", err)
	}
	return recs, nil
}

// GetElapsed returns closable records: incomplete, with a defined end date
// that has passed. Open-ended outages are never closed automatically.
func (r *MaintenanceRepo) GetElapsed(ctx context.Context, now time.Time) ([]*repository.MaintenanceRecord, error) {
	var recs []*repository.MaintenanceRecord
	err := r.db.Select(ctx, &recs, `
        SELECT * FROM maintenance_records
        WHERE completed = false AND end_date IS NOT NULL AND end_date <= $1
        ORDER BY end_date ASC
    `, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get elapsed maintenance records: %w", err)
	}
	return recs, nil
}

// MarkCompleted flips the completion flag. The predicate makes the write
// idempotent across overlapping reconciler runs.
func (r *MaintenanceRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE maintenance_records SET completed = true WHERE id = $1 AND completed = false
    `, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MaintenanceRepo) List(ctx context.Context, filter repository.MaintenanceFilter) ([]*repository.MaintenanceRecord, error) {
	query := "SELECT * FROM maintenance_records WHERE 1=1"
	args := []interface{}{}

	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		query += fmt.Sprintf(" AND $%d = ANY(item_ids)", len(args))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND start_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND (end_date IS NOT NULL AND end_date <= $%d)", len(args))
	}

	query += " ORDER BY start_date ASC"

	var recs []*repository.MaintenanceRecord
	err := r.db.Select(ctx, &recs, query, args...)
	return recs, err
}
