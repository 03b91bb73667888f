// Package substitution repairs outstanding reservations when an item drops
// out of service. Affected reservations either get the cheapest equivalent
// item swapped in or, with no candidate left, are cancelled.
package substitution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/metrics"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Item, error)
	UpdateCondition(ctx context.Context, id string, condition repository.Condition) error
}

type ReservationRepository interface {
	GetActiveOverlapping(ctx context.Context, itemID string, start time.Time, end *time.Time, excludeID string) ([]*repository.Reservation, error)
	Update(ctx context.Context, resv *repository.Reservation) error
	UpdateState(ctx context.Context, id string, to repository.ReservationState, from ...repository.ReservationState) (bool, error)
}

type MaintenanceRepository interface {
	Create(ctx context.Context, rec *repository.MaintenanceRecord) error
}

type AvailabilityIndex interface {
	GetAvailable(ctx context.Context, categoryID string, start, end time.Time, excludeReservationID string) ([]*repository.Item, error)
	Cheapest(items []*repository.Item, start, end time.Time) (*repository.Item, error)
}

type Engine struct {
	items        ItemRepository
	reservations ReservationRepository
	maintenance  MaintenanceRepository
	index        AvailabilityIndex
	logger       *zap.Logger
}

func NewEngine(items ItemRepository, reservations ReservationRepository, maintenance MaintenanceRepository, index AvailabilityIndex, logger *zap.Logger) *Engine {
	return &Engine{
		items:        items,
		reservations: reservations,
		maintenance:  maintenance,
		index:        index,
		logger:       logger,
	}
}

// ReplaceItem takes the item out of service: applies the new condition,
// opens a maintenance window (open-ended when end is nil) and repairs every
// reservation overlapping it. The record is created before the scan so the
// item cannot be handed back as its own substitute.
func (e *Engine) ReplaceItem(ctx context.Context, itemID string, newCondition repository.Condition, start time.Time, end *time.Time) error {
	if err := e.items.UpdateCondition(ctx, itemID, newCondition); err != nil {
		return fmt.Errorf("failed to update item condition: %w", err)
	}

	rec := &repository.MaintenanceRecord{
		ID:        uuid.NewString(),
		ItemIDs:   []string{itemID},
		StartDate: start,
		EndDate:   end,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.maintenance.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to create maintenance record: %w", err)
	}

	return e.substituteAffected(ctx, itemID, start, end)
}

// SubstituteWindow repairs reservations overlapping [start, end] without
// touching the item's condition or opening a maintenance window. The delay
// detector uses it to free an overrun item for upcoming bookings.
func (e *Engine) SubstituteWindow(ctx context.Context, itemID string, start, end time.Time) error {
	return e.substituteAffected(ctx, itemID, start, &end)
}

// substituteAffected processes each affected reservation independently: a
// failure on one is logged and never aborts the others.
func (e *Engine) substituteAffected(ctx context.Context, itemID string, start time.Time, end *time.Time) error {
	affected, err := e.reservations.GetActiveOverlapping(ctx, itemID, start, end, "")
	if err != nil {
		return fmt.Errorf("failed to find affected reservations: %w", err)
	}

	// Candidates come from the item's own category: a bundle reservation
	// references items of the component categories, not of the bundle.
	item, err := e.items.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	for _, resv := range affected {
		if err := e.substituteOne(ctx, resv, item); err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("substitute").Inc()
			e.logger.Error("substitution failed, continuing with remaining reservations",
				zap.String("reservation_id", resv.ID),
				zap.String("item_id", item.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) substituteOne(ctx context.Context, resv *repository.Reservation, item *repository.Item) error {
	candidates, err := e.index.GetAvailable(ctx, item.CategoryID, resv.StartDate, resv.EndDate, resv.ID)
	if err != nil {
		return fmt.Errorf("failed to find substitution candidates: %w", err)
	}

	// Candidates sharing another item of the same reservation are not
	// usable twice.
	candidates = withoutReserved(candidates, resv.ItemIDs)

	if len(candidates) == 0 {
		changed, err := e.reservations.UpdateState(ctx, resv.ID, repository.StateCancelled,
			repository.StateNotStarted, repository.StateInProgress, repository.StateDelayed)
		if err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		if changed {
			metrics.ReservationsCancelledTotal.Inc()
			e.logger.Warn("no substitute available, reservation cancelled",
				zap.String("reservation_id", resv.ID),
				zap.String("item_id", item.ID))
		}
		return nil
	}

	replacement, err := e.index.Cheapest(candidates, resv.StartDate, resv.EndDate)
	if err != nil {
		return err
	}

	for i, id := range resv.ItemIDs {
		if id == item.ID {
			resv.ItemIDs[i] = replacement.ID
		}
	}
	resv.UpdatedAt = time.Now().UTC()

	if err := e.reservations.Update(ctx, resv); err != nil {
		return fmt.Errorf("failed to persist substituted reservation: %w", err)
	}

	metrics.SubstitutionsTotal.Inc()
	e.logger.Info("item substituted",
		zap.String("reservation_id", resv.ID),
		zap.String("item_id", item.ID),
		zap.String("replacement_id", replacement.ID))
	return nil
}

func withoutReserved(candidates []*repository.Item, reserved []string) []*repository.Item {
	inUse := make(map[string]struct{}, len(reserved))
	for _, id := range reserved {
		inUse[id] = struct{}{}
	}
	filtered := candidates[:0]
	for _, c := range candidates {
		if _, ok := inUse[c.ID]; !ok {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
