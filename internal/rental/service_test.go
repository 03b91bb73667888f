package rental_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkhalmer/rentflow/internal/clock"
	"github.com/dkhalmer/rentflow/internal/pricing"
	"github.com/dkhalmer/rentflow/internal/rental"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type fakeItems struct {
	items      map[string]*repository.Item
	conditions map[string]repository.Condition
}

func (f *fakeItems) GetByID(_ context.Context, id string) (*repository.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return item, nil
}

func (f *fakeItems) GetByIDs(_ context.Context, ids []string) ([]*repository.Item, error) {
	var out []*repository.Item
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItems) UpdateCondition(_ context.Context, id string, condition repository.Condition) error {
	if f.conditions == nil {
		f.conditions = make(map[string]repository.Condition)
	}
	f.conditions[id] = condition
	f.items[id].Condition = condition
	return nil
}

type fakeReservations struct {
	byID        map[string]*repository.Reservation
	created     []*repository.Reservation
	staffCounts map[string]int
	// denyTransition simulates a concurrent winner: UpdateState reports
	// no row matched the predicate.
	denyTransition bool
}

func (f *fakeReservations) Create(_ context.Context, resv *repository.Reservation) error {
	if f.byID == nil {
		f.byID = make(map[string]*repository.Reservation)
	}
	f.byID[resv.ID] = resv
	f.created = append(f.created, resv)
	return nil
}

func (f *fakeReservations) GetByID(_ context.Context, id string) (*repository.Reservation, error) {
	resv, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	copied := *resv
	copied.ItemIDs = append([]string(nil), resv.ItemIDs...)
	return &copied, nil
}

func (f *fakeReservations) Update(_ context.Context, resv *repository.Reservation) error {
	if _, ok := f.byID[resv.ID]; !ok {
		return repository.ErrObjectNotFound
	}
	f.byID[resv.ID] = resv
	return nil
}

func (f *fakeReservations) UpdateState(_ context.Context, id string, to repository.ReservationState, from ...repository.ReservationState) (bool, error) {
	if f.denyTransition {
		return false, nil
	}
	resv, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	for _, state := range from {
		if resv.State == state {
			resv.State = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReservations) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return repository.ErrObjectNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeReservations) List(_ context.Context, _ repository.ReservationFilter) ([]*repository.Reservation, error) {
	var out []*repository.Reservation
	for _, resv := range f.byID {
		out = append(out, resv)
	}
	return out, nil
}

func (f *fakeReservations) CountByStaff(_ context.Context) (map[string]int, error) {
	return f.staffCounts, nil
}

type fakeCategories struct {
	categories map[string]*repository.Category
}

func (f *fakeCategories) GetByID(_ context.Context, id string) (*repository.Category, error) {
	category, ok := f.categories[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return category, nil
}

type fakeCustomers struct {
	ids map[string]bool
}

func (f *fakeCustomers) GetByID(_ context.Context, id string) (*repository.Customer, error) {
	if !f.ids[id] {
		return nil, repository.ErrObjectNotFound
	}
	return &repository.Customer{ID: id}, nil
}

type fakeStaff struct {
	members []*repository.Staff
}

func (f *fakeStaff) GetByID(_ context.Context, id string) (*repository.Staff, error) {
	for _, member := range f.members {
		if member.ID == id {
			return member, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (f *fakeStaff) List(_ context.Context) ([]*repository.Staff, error) {
	return f.members, nil
}

type fakeInvoices struct {
	created []*repository.Invoice
}

func (f *fakeInvoices) Create(_ context.Context, inv *repository.Invoice) error {
	f.created = append(f.created, inv)
	return nil
}

func (f *fakeInvoices) List(_ context.Context, _ repository.InvoiceFilter) ([]*repository.Invoice, error) {
	return f.created, nil
}

type fakeMaintenanceList struct{}

func (fakeMaintenanceList) List(_ context.Context, _ repository.MaintenanceFilter) ([]*repository.MaintenanceRecord, error) {
	return nil, nil
}

type fakeNotificationsRepo struct {
	checked []string
}

func (f *fakeNotificationsRepo) ListByCustomer(_ context.Context, _ string) ([]*repository.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationsRepo) MarkChecked(_ context.Context, id string) error {
	f.checked = append(f.checked, id)
	return nil
}

type fakeIndex struct {
	occupied  map[string]bool
	available map[string][]*repository.Item
	pricer    rental.Pricer
}

func (f *fakeIndex) IsOccupied(_ context.Context, itemID string, _, _ time.Time, _ string) (bool, error) {
	return f.occupied[itemID], nil
}

func (f *fakeIndex) GetAvailable(_ context.Context, categoryID string, _, _ time.Time, _ string) ([]*repository.Item, error) {
	return f.available[categoryID], nil
}

func (f *fakeIndex) Cheapest(items []*repository.Item, start, end time.Time) (*repository.Item, error) {
	best := items[0]
	bestPrice := f.pricer.Price([]*repository.Item{best}, start, end)
	for _, item := range items[1:] {
		if price := f.pricer.Price([]*repository.Item{item}, start, end); price < bestPrice {
			best = item
			bestPrice = price
		}
	}
	return best, nil
}

type replaceCall struct {
	itemID    string
	condition repository.Condition
	start     time.Time
	end       *time.Time
}

type fakeSubstituter struct {
	calls []replaceCall
}

func (f *fakeSubstituter) ReplaceItem(_ context.Context, itemID string, newCondition repository.Condition, start time.Time, end *time.Time) error {
	f.calls = append(f.calls, replaceCall{itemID: itemID, condition: newCondition, start: start, end: end})
	return nil
}

type emittedEvent struct {
	customerID    string
	reservationID string
	state         repository.ReservationState
}

type fakeNotifier struct {
	events []emittedEvent
}

func (f *fakeNotifier) Emit(_ context.Context, customerID, reservationID string, state repository.ReservationState) error {
	f.events = append(f.events, emittedEvent{customerID: customerID, reservationID: reservationID, state: state})
	return nil
}

type fakeCache struct {
	entries map[string]*repository.Reservation
}

func (f *fakeCache) Get(id string) (*repository.Reservation, bool) {
	resv, found := f.entries[id]
	return resv, found
}

func (f *fakeCache) Set(resv *repository.Reservation) {
	f.entries[resv.ID] = resv
}

func (f *fakeCache) Delete(id string) {
	delete(f.entries, id)
}

type fixture struct {
	items        *fakeItems
	reservations *fakeReservations
	categories   *fakeCategories
	customers    *fakeCustomers
	staff        *fakeStaff
	invoices     *fakeInvoices
	notes        *fakeNotificationsRepo
	index        *fakeIndex
	substituter  *fakeSubstituter
	notifier     *fakeNotifier
	cache        *fakeCache
	clock        *clock.Fixed
	service      *rental.Service
}

func date(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func newFixture() *fixture {
	calculator := pricing.NewCalculator()
	f := &fixture{
		items: &fakeItems{items: map[string]*repository.Item{
			"item-1": {ID: "item-1", CategoryID: "cat-1", BasePrice: 20, Condition: repository.ConditionPerfect},
			"item-2": {ID: "item-2", CategoryID: "cat-1", BasePrice: 30, Condition: repository.ConditionPerfect},
			"item-3": {ID: "item-3", CategoryID: "cat-2", BasePrice: 10, Condition: repository.ConditionGood},
		}},
		reservations: &fakeReservations{byID: make(map[string]*repository.Reservation)},
		categories: &fakeCategories{categories: map[string]*repository.Category{
			"cat-1":  {ID: "cat-1", Kind: repository.CategorySingle},
			"cat-2":  {ID: "cat-2", Kind: repository.CategorySingle},
			"bundle": {ID: "bundle", Kind: repository.CategoryBundle, Components: []string{"cat-1", "cat-2"}},
		}},
		customers:   &fakeCustomers{ids: map[string]bool{"cust-1": true}},
		staff:       &fakeStaff{members: []*repository.Staff{{ID: "staff-1"}, {ID: "staff-2"}}},
		invoices:    &fakeInvoices{},
		notes:       &fakeNotificationsRepo{},
		index:       &fakeIndex{occupied: map[string]bool{}, available: map[string][]*repository.Item{}, pricer: calculator},
		substituter: &fakeSubstituter{},
		notifier:    &fakeNotifier{},
		cache:       &fakeCache{entries: make(map[string]*repository.Reservation)},
		clock:       &clock.Fixed{T: date("2025-01-06")},
	}

	f.service = rental.NewService(rental.Deps{
		Items:         f.items,
		Reservations:  f.reservations,
		Categories:    f.categories,
		Customers:     f.customers,
		Staff:         f.staff,
		Invoices:      f.invoices,
		Maintenance:   fakeMaintenanceList{},
		Notifications: f.notes,
		Index:         f.index,
		Pricer:        calculator,
		Substituter:   f.substituter,
		Notifier:      f.notifier,
		Cache:         f.cache,
		Clock:         f.clock,
	})
	return f
}

func (f *fixture) createRequest() rental.CreateRequest {
	return rental.CreateRequest{
		CustomerID: "cust-1",
		StaffID:    "staff-1",
		CategoryID: "cat-1",
		ItemIDs:    []string{"item-1"},
		Price:      120,
		StartDate:  date("2025-01-06"),
		EndDate:    date("2025-01-11"),
	}
}

func TestService_CreateReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture()

		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)

		assert.Equal(t, repository.StateNotStarted, resv.State)
		assert.Equal(t, 120, resv.Price)
		assert.Equal(t, "staff-1", resv.StaffID)
		assert.Equal(t, f.clock.T, resv.CreatedAt)
		assert.Equal(t, f.clock.T, resv.UpdatedAt)
		require.Len(t, f.reservations.created, 1)
	})

	t.Run("occupied item is a conflict", func(t *testing.T) {
		f := newFixture()
		f.index.occupied["item-1"] = true

		_, err := f.service.CreateReservation(ctx, f.createRequest())
		assert.ErrorIs(t, err, rental.ErrConflict)
	})

	t.Run("stale quote is rejected", func(t *testing.T) {
		f := newFixture()
		req := f.createRequest()
		req.Price = 110

		_, err := f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrPriceChanged)
	})

	t.Run("unknown customer", func(t *testing.T) {
		f := newFixture()
		req := f.createRequest()
		req.CustomerID = "cust-unknown"

		_, err := f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrNotFound)
	})

	t.Run("end before start", func(t *testing.T) {
		f := newFixture()
		req := f.createRequest()
		req.StartDate = date("2025-01-11")
		req.EndDate = date("2025-01-06")

		_, err := f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrInvalidInterval)
	})

	t.Run("single category wants exactly one item of its type", func(t *testing.T) {
		f := newFixture()

		req := f.createRequest()
		req.ItemIDs = []string{"item-1", "item-2"}
		_, err := f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrInvalidCategory)

		req = f.createRequest()
		req.ItemIDs = []string{"item-3"}
		req.Price = 57 // 10 * 0.95 * 6 days
		_, err = f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrInvalidCategory)
	})

	t.Run("bundle needs one item per component", func(t *testing.T) {
		f := newFixture()

		req := f.createRequest()
		req.CategoryID = "bundle"
		req.ItemIDs = []string{"item-1", "item-3"}
		// (20 + 10*0.95) * 6 days = 177, minus 10% bundle discount.
		req.Price = 159

		resv, err := f.service.CreateReservation(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 159, resv.Price)

		req.ItemIDs = []string{"item-1", "item-2"}
		_, err = f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrInvalidCategory)
	})

	t.Run("unassigned booking goes to least loaded staff", func(t *testing.T) {
		f := newFixture()
		f.reservations.staffCounts = map[string]int{"staff-1": 3, "staff-2": 1}

		req := f.createRequest()
		req.StaffID = ""

		resv, err := f.service.CreateReservation(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "staff-2", resv.StaffID)
	})

	t.Run("staff tie keeps listing order", func(t *testing.T) {
		f := newFixture()
		f.reservations.staffCounts = map[string]int{}

		req := f.createRequest()
		req.StaffID = ""

		resv, err := f.service.CreateReservation(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "staff-1", resv.StaffID)
	})

	t.Run("no staff at all", func(t *testing.T) {
		f := newFixture()
		f.staff.members = nil

		req := f.createRequest()
		req.StaffID = ""

		_, err := f.service.CreateReservation(ctx, req)
		assert.ErrorIs(t, err, rental.ErrNoStaff)
	})
}

func TestService_ModifyReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("unset fields keep stored values", func(t *testing.T) {
		f := newFixture()
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)

		// Shrink the rental to 2025-01-06..2025-01-10: 5 days at 20.
		newEnd := date("2025-01-10")
		newPrice := 100
		updated, err := f.service.ModifyReservation(ctx, resv.ID, rental.Patch{
			EndDate: &newEnd,
			Price:   &newPrice,
		})
		require.NoError(t, err)

		assert.Equal(t, resv.CustomerID, updated.CustomerID)
		assert.Equal(t, resv.ItemIDs, updated.ItemIDs)
		assert.Equal(t, newEnd, updated.EndDate)
		assert.Equal(t, 100, updated.Price)
		assert.Equal(t, f.clock.T, updated.UpdatedAt)
	})

	t.Run("merged result is revalidated", func(t *testing.T) {
		f := newFixture()
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)

		newEnd := date("2025-01-10")
		_, err = f.service.ModifyReservation(ctx, resv.ID, rental.Patch{EndDate: &newEnd})
		// The stored price covers 6 days, the shrunk interval prices
		// differently, so the stale quote check fires.
		assert.ErrorIs(t, err, rental.ErrPriceChanged)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.ModifyReservation(ctx, "missing", rental.Patch{})
		assert.ErrorIs(t, err, rental.ErrNotFound)
	})
}

func TestService_StartReservation(t *testing.T) {
	ctx := context.Background()

	setup := func(f *fixture) *repository.Reservation {
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)
		return resv
	}

	t.Run("start inside the window", func(t *testing.T) {
		f := newFixture()
		resv := setup(f)
		f.clock.T = date("2025-01-08")

		started, err := f.service.StartReservation(ctx, resv.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.StateInProgress, started.State)

		require.Len(t, f.notifier.events, 1)
		assert.Equal(t, repository.StateInProgress, f.notifier.events[0].state)
	})

	t.Run("too early", func(t *testing.T) {
		f := newFixture()
		resv := setup(f)
		f.clock.T = date("2025-01-05")

		_, err := f.service.StartReservation(ctx, resv.ID)
		assert.ErrorIs(t, err, rental.ErrInvalidTransition)
	})

	t.Run("grace window extends one day past the end", func(t *testing.T) {
		f := newFixture()
		resv := setup(f)

		// Half a day into the grace window still starts.
		f.clock.T = date("2025-01-11").Add(12 * time.Hour)
		_, err := f.service.StartReservation(ctx, resv.ID)
		require.NoError(t, err)
	})

	t.Run("past the grace window", func(t *testing.T) {
		f := newFixture()
		resv := setup(f)
		f.clock.T = date("2025-01-13")

		_, err := f.service.StartReservation(ctx, resv.ID)
		assert.ErrorIs(t, err, rental.ErrInvalidTransition)
	})

	t.Run("already started", func(t *testing.T) {
		f := newFixture()
		resv := setup(f)
		f.clock.T = date("2025-01-08")

		_, err := f.service.StartReservation(ctx, resv.ID)
		require.NoError(t, err)
		_, err = f.service.StartReservation(ctx, resv.ID)
		assert.ErrorIs(t, err, rental.ErrInvalidTransition)
	})
}

func TestService_TerminateReservation(t *testing.T) {
	ctx := context.Background()

	started := func(f *fixture) *repository.Reservation {
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)
		f.clock.T = date("2025-01-08")
		resv, err = f.service.StartReservation(ctx, resv.ID)
		require.NoError(t, err)
		return resv
	}

	t.Run("clean return invoices the reservation price", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		invoice, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionPerfect},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 120, invoice.Price)
		assert.Empty(t, f.substituter.calls)

		var conditions map[string]repository.Condition
		require.NoError(t, json.Unmarshal([]byte(invoice.ReturnedConditions), &conditions))
		assert.Equal(t, repository.ConditionPerfect, conditions["item-1"])
	})

	t.Run("broken return adds the penalty and opens a repair window", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		repairStart := date("2025-01-12")
		repairEnd := date("2025-01-20")
		invoice, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {
					Condition:   repository.ConditionBroken,
					RepairStart: &repairStart,
					RepairEnd:   &repairEnd,
				},
			},
		})
		require.NoError(t, err)

		// 120 plus 80% of the 20 base price.
		assert.Equal(t, 136, invoice.Price)
		require.Len(t, f.substituter.calls, 1)
		assert.Equal(t, "item-1", f.substituter.calls[0].itemID)
		assert.Equal(t, repository.ConditionBroken, f.substituter.calls[0].condition)
	})

	t.Run("degraded return adds the damage penalty", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		invoice, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionSuitable},
			},
		})
		require.NoError(t, err)

		// 120 plus 20% of the 20 base price.
		assert.Equal(t, 124, invoice.Price)
		assert.Equal(t, repository.ConditionSuitable, f.items.conditions["item-1"])
		assert.Empty(t, f.substituter.calls)
	})

	t.Run("broken return without repair window", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		_, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionBroken},
			},
		})
		assert.ErrorIs(t, err, rental.ErrMissingReparationWindow)
	})

	t.Run("returned set must cover the reservation", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		_, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-2": {Condition: repository.ConditionPerfect},
			},
		})
		assert.ErrorIs(t, err, rental.ErrItemMismatch)
	})

	t.Run("delayed reservation pays per overdue day", func(t *testing.T) {
		f := newFixture()
		resv := started(f)
		f.reservations.byID[resv.ID].State = repository.StateDelayed

		// Two days past the 2025-01-11 end date.
		f.clock.T = date("2025-01-13")
		invoice, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionPerfect},
			},
		})
		require.NoError(t, err)

		// 120 plus 2 * 120 * 0.2.
		assert.Equal(t, 168, invoice.Price)
	})

	t.Run("losing a concurrent terminate writes nothing", func(t *testing.T) {
		f := newFixture()
		resv := started(f)
		f.reservations.denyTransition = true

		_, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionPerfect},
			},
		})
		assert.ErrorIs(t, err, rental.ErrInvalidTransition)
		assert.Empty(t, f.invoices.created)
	})

	t.Run("not started reservations cannot terminate", func(t *testing.T) {
		f := newFixture()
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)

		_, err = f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionPerfect},
			},
		})
		assert.ErrorIs(t, err, rental.ErrInvalidTransition)
	})

	t.Run("termination emits a notification", func(t *testing.T) {
		f := newFixture()
		resv := started(f)

		_, err := f.service.TerminateReservation(ctx, resv.ID, rental.TerminateRequest{
			ReturnedItems: map[string]rental.ReturnedItem{
				"item-1": {Condition: repository.ConditionPerfect},
			},
		})
		require.NoError(t, err)

		require.Len(t, f.notifier.events, 2)
		assert.Equal(t, repository.StateTerminated, f.notifier.events[1].state)
	})
}

func TestService_QueryAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("single category quotes the cheapest free item", func(t *testing.T) {
		f := newFixture()
		f.index.available["cat-1"] = []*repository.Item{
			f.items.items["item-1"],
			f.items.items["item-2"],
		}

		result, err := f.service.QueryAvailability(ctx, "cat-1", date("2025-01-06"), date("2025-01-11"), "")
		require.NoError(t, err)

		assert.True(t, result.Available)
		assert.Len(t, result.Items, 2)
		assert.Equal(t, 120, result.Price) // item-1 at 20/day over 6 days
	})

	t.Run("single category with nothing free", func(t *testing.T) {
		f := newFixture()

		result, err := f.service.QueryAvailability(ctx, "cat-1", date("2025-01-06"), date("2025-01-11"), "")
		require.NoError(t, err)
		assert.False(t, result.Available)
	})

	t.Run("bundle quotes cheapest per component with bundle discount", func(t *testing.T) {
		f := newFixture()
		f.index.available["cat-1"] = []*repository.Item{f.items.items["item-1"], f.items.items["item-2"]}
		f.index.available["cat-2"] = []*repository.Item{f.items.items["item-3"]}

		result, err := f.service.QueryAvailability(ctx, "bundle", date("2025-01-06"), date("2025-01-11"), "")
		require.NoError(t, err)

		assert.True(t, result.Available)
		// (20 + 10*0.95) * 6 = 177, minus 10%.
		assert.Equal(t, 159, result.Price)
	})

	t.Run("one exhausted component sinks the bundle", func(t *testing.T) {
		f := newFixture()
		f.index.available["cat-1"] = []*repository.Item{f.items.items["item-1"]}

		result, err := f.service.QueryAvailability(ctx, "bundle", date("2025-01-06"), date("2025-01-11"), "")
		require.NoError(t, err)
		assert.False(t, result.Available)
	})

	t.Run("unknown category", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.QueryAvailability(ctx, "missing", date("2025-01-06"), date("2025-01-11"), "")
		assert.ErrorIs(t, err, rental.ErrNotFound)
	})
}

func TestService_DeleteReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	resv, err := f.service.CreateReservation(ctx, f.createRequest())
	require.NoError(t, err)

	deleted, err := f.service.DeleteReservation(ctx, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, resv.ID, deleted.ID)

	_, err = f.service.GetReservation(ctx, resv.ID)
	assert.ErrorIs(t, err, rental.ErrNotFound)
}

func TestService_GetReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("active reservation is served from the cache", func(t *testing.T) {
		f := newFixture()
		resv, err := f.service.CreateReservation(ctx, f.createRequest())
		require.NoError(t, err)

		// Storage going away must not matter for a cached read.
		f.reservations.byID = map[string]*repository.Reservation{}

		got, err := f.service.GetReservation(ctx, resv.ID)
		require.NoError(t, err)
		assert.Equal(t, resv.ID, got.ID)
	})

	t.Run("cache miss falls back to storage and repopulates", func(t *testing.T) {
		f := newFixture()
		f.reservations.byID["resv-1"] = &repository.Reservation{
			ID:    "resv-1",
			State: repository.StateNotStarted,
		}

		got, err := f.service.GetReservation(ctx, "resv-1")
		require.NoError(t, err)
		assert.Equal(t, "resv-1", got.ID)

		_, cached := f.cache.Get("resv-1")
		assert.True(t, cached)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.GetReservation(ctx, "resv-missing")
		assert.ErrorIs(t, err, rental.ErrNotFound)
	})
}

func TestService_AcknowledgeNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.service.AcknowledgeNotification(ctx, "note-1"))
	assert.Equal(t, []string{"note-1"}, f.notes.checked)
}
