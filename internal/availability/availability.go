// Package availability decides whether items are free over a date interval.
// Occupancy comes from two sources: non-terminal reservations and open
// maintenance windows, both with inclusive-endpoint overlap semantics.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkhalmer/rentflow/internal/repository"
)

// ErrNoCandidate is returned by Cheapest for an empty candidate set.
var ErrNoCandidate = errors.New("no candidate items")

type ReservationRepository interface {
	GetActiveOverlapping(ctx context.Context, itemID string, start time.Time, end *time.Time, excludeID string) ([]*repository.Reservation, error)
}

type MaintenanceRepository interface {
	GetOpenOverlapping(ctx context.Context, itemID string, start, end time.Time) ([]*repository.MaintenanceRecord, error)
}

type ItemRepository interface {
	GetByCategory(ctx context.Context, categoryID string) ([]*repository.Item, error)
}

type Pricer interface {
	Price(items []*repository.Item, start, end time.Time) int
}

type Index struct {
	reservations ReservationRepository
	maintenance  MaintenanceRepository
	items        ItemRepository
	pricer       Pricer
}

func NewIndex(reservations ReservationRepository, maintenance MaintenanceRepository, items ItemRepository, pricer Pricer) *Index {
	return &Index{
		reservations: reservations,
		maintenance:  maintenance,
		items:        items,
		pricer:       pricer,
	}
}

// IsOccupied reports whether the item is busy anywhere in [start, end].
// excludeReservationID lets a modification check against all reservations
// but its own prior record.
func (ix *Index) IsOccupied(ctx context.Context, itemID string, start, end time.Time, excludeReservationID string) (bool, error) {
	resvs, err := ix.reservations.GetActiveOverlapping(ctx, itemID, start, &end, excludeReservationID)
	if err != nil {
		return false, fmt.Errorf("failed to check reservation occupancy: %w", err)
	}
	if len(resvs) > 0 {
		return true, nil
	}

	recs, err := ix.maintenance.GetOpenOverlapping(ctx, itemID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to check maintenance occupancy: %w", err)
	}
	return len(recs) > 0, nil
}

// GetAvailable returns every item of the category that is in service and
// not occupied over the interval.
func (ix *Index) GetAvailable(ctx context.Context, categoryID string, start, end time.Time, excludeReservationID string) ([]*repository.Item, error) {
	items, err := ix.items.GetByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category items: %w", err)
	}

	var free []*repository.Item
	for _, item := range items {
		if item.Condition == repository.ConditionNotAvailable {
			continue
		}
		occupied, err := ix.IsOccupied(ctx, item.ID, start, end, excludeReservationID)
		if err != nil {
			return nil, err
		}
		if !occupied {
			free = append(free, item)
		}
	}
	return free, nil
}

// Cheapest reduces the candidate set by single-item price comparison. Ties
// keep the first encountered.
func (ix *Index) Cheapest(items []*repository.Item, start, end time.Time) (*repository.Item, error) {
	if len(items) == 0 {
		return nil, ErrNoCandidate
	}

	best := items[0]
	bestPrice := ix.pricer.Price([]*repository.Item{best}, start, end)
	for _, item := range items[1:] {
		price := ix.pricer.Price([]*repository.Item{item}, start, end)
		if price < bestPrice {
			best = item
			bestPrice = price
		}
	}
	return best, nil
}
