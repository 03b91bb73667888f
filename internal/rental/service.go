// Package rental drives the reservation lifecycle: booking validation,
// state transitions, invoicing and notification emission.
package rental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/clock"
	"github.com/dkhalmer/rentflow/internal/metrics"
	"github.com/dkhalmer/rentflow/internal/repository"
)

const (
	damagedItemPenalty = 0.2
	brokenItemPenalty  = 0.8
	delayPenaltyRate   = 0.2

	// startGrace is the window after the nominal start range in which a
	// reservation may still be started.
	startGrace = 24 * time.Hour
)

type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]*repository.Item, error)
	UpdateCondition(ctx context.Context, id string, condition repository.Condition) error
}

type ReservationRepository interface {
	Create(ctx context.Context, resv *repository.Reservation) error
	GetByID(ctx context.Context, id string) (*repository.Reservation, error)
	Update(ctx context.Context, resv *repository.Reservation) error
	UpdateState(ctx context.Context, id string, to repository.ReservationState, from ...repository.ReservationState) (bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter repository.ReservationFilter) ([]*repository.Reservation, error)
	CountByStaff(ctx context.Context) (map[string]int, error)
}

type CategoryRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Category, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Customer, error)
}

type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Staff, error)
	List(ctx context.Context) ([]*repository.Staff, error)
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *repository.Invoice) error
	List(ctx context.Context, filter repository.InvoiceFilter) ([]*repository.Invoice, error)
}

type MaintenanceRepository interface {
	List(ctx context.Context, filter repository.MaintenanceFilter) ([]*repository.MaintenanceRecord, error)
}

type NotificationRepository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]*repository.Notification, error)
	MarkChecked(ctx context.Context, id string) error
}

type AvailabilityIndex interface {
	IsOccupied(ctx context.Context, itemID string, start, end time.Time, excludeReservationID string) (bool, error)
	GetAvailable(ctx context.Context, categoryID string, start, end time.Time, excludeReservationID string) ([]*repository.Item, error)
	Cheapest(items []*repository.Item, start, end time.Time) (*repository.Item, error)
}

type Pricer interface {
	Price(items []*repository.Item, start, end time.Time) int
}

type Substituter interface {
	ReplaceItem(ctx context.Context, itemID string, newCondition repository.Condition, start time.Time, end *time.Time) error
}

type Notifier interface {
	Emit(ctx context.Context, customerID, reservationID string, state repository.ReservationState) error
}

type ReservationCache interface {
	Get(id string) (*repository.Reservation, bool)
	Set(resv *repository.Reservation)
	Delete(id string)
}

// Deps wires the service explicitly; tests pass fakes for any subset.
type Deps struct {
	Items         ItemRepository
	Reservations  ReservationRepository
	Categories    CategoryRepository
	Customers     CustomerRepository
	Staff         StaffRepository
	Invoices      InvoiceRepository
	Maintenance   MaintenanceRepository
	Notifications NotificationRepository
	Index         AvailabilityIndex
	Pricer        Pricer
	Substituter   Substituter
	Notifier      Notifier
	Cache         ReservationCache
	Clock         clock.Clock
	Logger        *zap.Logger
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{deps: deps}
}

type CreateRequest struct {
	CustomerID string
	StaffID    string
	CategoryID string
	ItemIDs    []string
	Price      int
	StartDate  time.Time
	EndDate    time.Time
}

func (s *Service) CreateReservation(ctx context.Context, req CreateRequest) (*repository.Reservation, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, ErrInvalidInterval
	}

	if _, err := s.deps.Customers.GetByID(ctx, req.CustomerID); err != nil {
		return nil, asNotFound(err, "customer")
	}

	category, err := s.deps.Categories.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, asNotFound(err, "category")
	}

	items, err := s.loadItems(ctx, req.ItemIDs)
	if err != nil {
		return nil, err
	}

	if err := validateComposition(category, items); err != nil {
		return nil, err
	}

	staffID := req.StaffID
	if staffID == "" {
		staffID, err = s.pickStaff(ctx)
		if err != nil {
			return nil, err
		}
	} else if _, err := s.deps.Staff.GetByID(ctx, staffID); err != nil {
		return nil, asNotFound(err, "staff")
	}

	if err := s.checkItemsFree(ctx, req.ItemIDs, req.StartDate, req.EndDate, ""); err != nil {
		return nil, err
	}

	if computed := s.deps.Pricer.Price(items, req.StartDate, req.EndDate); computed != req.Price {
		return nil, fmt.Errorf("%w: quoted %d, computed %d", ErrPriceChanged, req.Price, computed)
	}

	now := s.deps.Clock.Now().UTC()
	resv := &repository.Reservation{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		StaffID:    staffID,
		CategoryID: req.CategoryID,
		ItemIDs:    append([]string(nil), req.ItemIDs...),
		Price:      req.Price,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		State:      repository.StateNotStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.deps.Reservations.Create(ctx, resv); err != nil {
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	s.cacheSet(resv)
	metrics.ReservationsCreatedTotal.Inc()
	s.deps.Logger.Info("reservation created",
		zap.String("reservation_id", resv.ID),
		zap.String("category_id", resv.CategoryID),
		zap.Int("price", resv.Price))
	return resv, nil
}

// Patch carries a partial modification; nil fields keep the stored value.
// State is deliberately absent: it only moves through Start/Terminate.
type Patch struct {
	CustomerID *string
	StaffID    *string
	CategoryID *string
	ItemIDs    []string
	Price      *int
	StartDate  *time.Time
	EndDate    *time.Time
}

func (s *Service) ModifyReservation(ctx context.Context, id string, patch Patch) (*repository.Reservation, error) {
	resv, err := s.deps.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "reservation")
	}

	merged := *resv
	merged.ItemIDs = append([]string(nil), resv.ItemIDs...)
	if patch.CustomerID != nil {
		merged.CustomerID = *patch.CustomerID
	}
	if patch.StaffID != nil {
		merged.StaffID = *patch.StaffID
	}
	if patch.CategoryID != nil {
		merged.CategoryID = *patch.CategoryID
	}
	if len(patch.ItemIDs) > 0 {
		merged.ItemIDs = append([]string(nil), patch.ItemIDs...)
	}
	if patch.Price != nil {
		merged.Price = *patch.Price
	}
	if patch.StartDate != nil {
		merged.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		merged.EndDate = *patch.EndDate
	}

	if merged.EndDate.Before(merged.StartDate) {
		return nil, ErrInvalidInterval
	}

	category, err := s.deps.Categories.GetByID(ctx, merged.CategoryID)
	if err != nil {
		return nil, asNotFound(err, "category")
	}

	items, err := s.loadItems(ctx, merged.ItemIDs)
	if err != nil {
		return nil, err
	}

	if err := validateComposition(category, items); err != nil {
		return nil, err
	}

	// The reservation's own prior record must not count as a conflict.
	if err := s.checkItemsFree(ctx, merged.ItemIDs, merged.StartDate, merged.EndDate, merged.ID); err != nil {
		return nil, err
	}

	if computed := s.deps.Pricer.Price(items, merged.StartDate, merged.EndDate); computed != merged.Price {
		return nil, fmt.Errorf("%w: quoted %d, computed %d", ErrPriceChanged, merged.Price, computed)
	}

	merged.UpdatedAt = s.deps.Clock.Now().UTC()
	if err := s.deps.Reservations.Update(ctx, &merged); err != nil {
		return nil, asNotFound(err, "reservation")
	}

	s.cacheSet(&merged)
	return &merged, nil
}

func (s *Service) StartReservation(ctx context.Context, id string) (*repository.Reservation, error) {
	resv, err := s.deps.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "reservation")
	}

	if resv.State != repository.StateNotStarted {
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, resv.State)
	}

	now := s.deps.Clock.Now()
	if now.Before(resv.StartDate) || now.After(resv.EndDate.Add(startGrace)) {
		return nil, fmt.Errorf("%w: start only allowed between %s and one day past %s",
			ErrInvalidTransition,
			resv.StartDate.Format("2006-01-02"),
			resv.EndDate.Format("2006-01-02"))
	}

	changed, err := s.deps.Reservations.UpdateState(ctx, id, repository.StateInProgress, repository.StateNotStarted)
	if err != nil {
		return nil, fmt.Errorf("failed to start reservation: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: reservation already started", ErrInvalidTransition)
	}

	resv.State = repository.StateInProgress
	s.cacheSet(resv)
	metrics.ReservationsStartedTotal.Inc()

	if err := s.deps.Notifier.Emit(ctx, resv.CustomerID, resv.ID, repository.StateInProgress); err != nil {
		s.deps.Logger.Error("failed to emit start notification",
			zap.String("reservation_id", resv.ID), zap.Error(err))
	}
	return resv, nil
}

// ReturnedItem describes the state an item came back in. The repair window
// is mandatory when the condition is broken or not_available.
type ReturnedItem struct {
	Condition   repository.Condition
	RepairStart *time.Time
	RepairEnd   *time.Time
}

type TerminateRequest struct {
	ReturnedItems map[string]ReturnedItem
	Notes         string
}

func (s *Service) TerminateReservation(ctx context.Context, id string, req TerminateRequest) (*repository.Invoice, error) {
	resv, err := s.deps.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "reservation")
	}

	if resv.State != repository.StateInProgress && resv.State != repository.StateDelayed {
		return nil, fmt.Errorf("%w: cannot terminate from %s", ErrInvalidTransition, resv.State)
	}

	// Validate the full return set up front; nothing is mutated until
	// every item checks out.
	for _, itemID := range resv.ItemIDs {
		ret, ok := req.ReturnedItems[itemID]
		if !ok || !ret.Condition.Valid() {
			return nil, ErrItemMismatch
		}
		if ret.Condition.OutOfService() {
			if ret.RepairStart == nil || ret.RepairEnd == nil || ret.RepairEnd.Before(*ret.RepairStart) {
				return nil, ErrMissingReparationWindow
			}
		}
	}

	items, err := s.loadItems(ctx, resv.ItemIDs)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]repository.Condition, len(items))
	for _, item := range items {
		prior[item.ID] = item.Condition
	}
	base := make(map[string]int, len(items))
	for _, item := range items {
		base[item.ID] = item.BasePrice
	}

	var penalties float64
	for _, itemID := range resv.ItemIDs {
		ret := req.ReturnedItems[itemID]
		if ret.Condition == prior[itemID] {
			continue
		}

		if ret.Condition.OutOfService() {
			penalties += float64(base[itemID]) * brokenItemPenalty
			if err := s.deps.Substituter.ReplaceItem(ctx, itemID, ret.Condition, *ret.RepairStart, ret.RepairEnd); err != nil {
				s.deps.Logger.Error("failed to take returned item out of service",
					zap.String("item_id", itemID), zap.Error(err))
			}
			continue
		}

		if err := s.deps.Items.UpdateCondition(ctx, itemID, ret.Condition); err != nil {
			return nil, fmt.Errorf("failed to update item condition: %w", err)
		}
		if conditionRank(ret.Condition) > conditionRank(prior[itemID]) {
			penalties += float64(base[itemID]) * damagedItemPenalty
		}
	}

	now := s.deps.Clock.Now()
	if resv.State == repository.StateDelayed {
		daysLate := int(math.Round(math.Abs(now.Sub(resv.EndDate).Hours() / 24)))
		penalties += float64(daysLate) * float64(resv.Price) * delayPenaltyRate
	}

	// The conditional update serializes concurrent terminates: exactly
	// one caller wins and writes the invoice.
	changed, err := s.deps.Reservations.UpdateState(ctx, id, repository.StateTerminated,
		repository.StateInProgress, repository.StateDelayed)
	if err != nil {
		return nil, fmt.Errorf("failed to terminate reservation: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: reservation already terminated", ErrInvalidTransition)
	}

	conditions := make(map[string]repository.Condition, len(req.ReturnedItems))
	for itemID, ret := range req.ReturnedItems {
		conditions[itemID] = ret.Condition
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal returned conditions: %w", err)
	}

	invoice := &repository.Invoice{
		ID:                 uuid.NewString(),
		ReservationID:      resv.ID,
		CustomerID:         resv.CustomerID,
		StaffID:            resv.StaffID,
		Price:              resv.Price + int(math.Floor(penalties)),
		StartDate:          resv.StartDate,
		EndDate:            resv.EndDate,
		ReturnedConditions: string(conditionsJSON),
		Notes:              req.Notes,
		CreatedAt:          now,
	}
	if err := s.deps.Invoices.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.cacheDelete(resv.ID)
	metrics.ReservationsTerminatedTotal.Inc()

	if err := s.deps.Notifier.Emit(ctx, resv.CustomerID, resv.ID, repository.StateTerminated); err != nil {
		s.deps.Logger.Error("failed to emit termination notification",
			zap.String("reservation_id", resv.ID), zap.Error(err))
	}
	return invoice, nil
}

// DeleteReservation removes the record administratively, whatever its
// state. Item conditions are not reversed and no invoice is produced.
func (s *Service) DeleteReservation(ctx context.Context, id string) (*repository.Reservation, error) {
	resv, err := s.deps.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "reservation")
	}
	if err := s.deps.Reservations.Delete(ctx, id); err != nil {
		return nil, asNotFound(err, "reservation")
	}
	s.cacheDelete(id)
	return resv, nil
}

func (s *Service) GetReservation(ctx context.Context, id string) (*repository.Reservation, error) {
	if s.deps.Cache != nil {
		if resv, found := s.deps.Cache.Get(id); found {
			return resv, nil
		}
	}
	resv, err := s.deps.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "reservation")
	}
	s.cacheSet(resv)
	return resv, nil
}

func (s *Service) ListReservations(ctx context.Context, filter repository.ReservationFilter) ([]*repository.Reservation, error) {
	return s.deps.Reservations.List(ctx, filter)
}

// Availability is the answer to an availability query: the free items, and
// a quote for the cheapest viable selection.
type Availability struct {
	Available bool
	Items     []*repository.Item
	Price     int
}

func (s *Service) QueryAvailability(ctx context.Context, categoryID string, start, end time.Time, excludeReservationID string) (*Availability, error) {
	if end.Before(start) {
		return nil, ErrInvalidInterval
	}

	category, err := s.deps.Categories.GetByID(ctx, categoryID)
	if err != nil {
		return nil, asNotFound(err, "category")
	}

	if category.Kind == repository.CategoryBundle {
		return s.bundleAvailability(ctx, category, start, end, excludeReservationID)
	}

	free, err := s.deps.Index.GetAvailable(ctx, categoryID, start, end, excludeReservationID)
	if err != nil {
		return nil, err
	}
	if len(free) == 0 {
		return &Availability{Available: false}, nil
	}

	cheapest, err := s.deps.Index.Cheapest(free, start, end)
	if err != nil {
		return nil, err
	}
	return &Availability{
		Available: true,
		Items:     free,
		Price:     s.deps.Pricer.Price([]*repository.Item{cheapest}, start, end),
	}, nil
}

// bundleAvailability resolves each component independently and quotes the
// cheapest item per component. One exhausted component makes the whole
// bundle unavailable.
func (s *Service) bundleAvailability(ctx context.Context, category *repository.Category, start, end time.Time, excludeReservationID string) (*Availability, error) {
	var all []*repository.Item
	selection := make([]*repository.Item, 0, len(category.Components))
	taken := make(map[string]struct{})

	for _, componentID := range category.Components {
		free, err := s.deps.Index.GetAvailable(ctx, componentID, start, end, excludeReservationID)
		if err != nil {
			return nil, err
		}

		remaining := free[:0]
		for _, item := range free {
			if _, used := taken[item.ID]; !used {
				remaining = append(remaining, item)
			}
		}
		if len(remaining) == 0 {
			return &Availability{Available: false}, nil
		}

		cheapest, err := s.deps.Index.Cheapest(remaining, start, end)
		if err != nil {
			return nil, err
		}
		taken[cheapest.ID] = struct{}{}
		selection = append(selection, cheapest)
		all = append(all, remaining...)
	}

	return &Availability{
		Available: true,
		Items:     all,
		Price:     s.deps.Pricer.Price(selection, start, end),
	}, nil
}

func (s *Service) ListReparations(ctx context.Context, filter repository.MaintenanceFilter) ([]*repository.MaintenanceRecord, error) {
	return s.deps.Maintenance.List(ctx, filter)
}

func (s *Service) ListInvoices(ctx context.Context, filter repository.InvoiceFilter) ([]*repository.Invoice, error) {
	return s.deps.Invoices.List(ctx, filter)
}

func (s *Service) ListNotifications(ctx context.Context, customerID string) ([]*repository.Notification, error) {
	return s.deps.Notifications.ListByCustomer(ctx, customerID)
}

func (s *Service) AcknowledgeNotification(ctx context.Context, id string) error {
	if err := s.deps.Notifications.MarkChecked(ctx, id); err != nil {
		return asNotFound(err, "notification")
	}
	return nil
}

func (s *Service) loadItems(ctx context.Context, ids []string) ([]*repository.Item, error) {
	items, err := s.deps.Items.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	if len(items) != len(ids) {
		return nil, fmt.Errorf("%w: unknown item", ErrNotFound)
	}
	return items, nil
}

func (s *Service) checkItemsFree(ctx context.Context, itemIDs []string, start, end time.Time, excludeReservationID string) error {
	for _, itemID := range itemIDs {
		occupied, err := s.deps.Index.IsOccupied(ctx, itemID, start, end, excludeReservationID)
		if err != nil {
			return fmt.Errorf("failed to check availability: %w", err)
		}
		if occupied {
			return fmt.Errorf("%w: item %s", ErrConflict, itemID)
		}
	}
	return nil
}

// pickStaff load-balances unassigned bookings round-robin by current
// reservation count; ties keep the first staff member in listing order.
func (s *Service) pickStaff(ctx context.Context) (string, error) {
	staff, err := s.deps.Staff.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list staff: %w", err)
	}
	if len(staff) == 0 {
		return "", ErrNoStaff
	}

	counts, err := s.deps.Reservations.CountByStaff(ctx)
	if err != nil {
		return "", err
	}

	best := staff[0]
	for _, member := range staff[1:] {
		if counts[member.ID] < counts[best.ID] {
			best = member
		}
	}
	return best.ID, nil
}

// validateComposition dispatches on the category tag: a single category
// wants exactly one item of its own type, a bundle wants one item per
// declared component.
func validateComposition(category *repository.Category, items []*repository.Item) error {
	switch category.Kind {
	case repository.CategorySingle:
		if len(items) != 1 || items[0].CategoryID != category.ID {
			return ErrInvalidCategory
		}
	case repository.CategoryBundle:
		if len(items) != len(category.Components) {
			return ErrInvalidCategory
		}
		needed := make(map[string]int, len(category.Components))
		for _, componentID := range category.Components {
			needed[componentID]++
		}
		for _, item := range items {
			if needed[item.CategoryID] == 0 {
				return ErrInvalidCategory
			}
			needed[item.CategoryID]--
		}
	default:
		return ErrInvalidCategory
	}
	return nil
}

func conditionRank(c repository.Condition) int {
	switch c {
	case repository.ConditionPerfect:
		return 0
	case repository.ConditionGood:
		return 1
	case repository.ConditionSuitable:
		return 2
	}
	return 3
}

func (s *Service) cacheSet(resv *repository.Reservation) {
	if s.deps.Cache != nil {
		s.deps.Cache.Set(resv)
	}
}

func (s *Service) cacheDelete(id string) {
	if s.deps.Cache != nil {
		s.deps.Cache.Delete(id)
	}
}

func asNotFound(err error, what string) error {
	if errors.Is(err, repository.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
