package substitution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/repository"
	"github.com/dkhalmer/rentflow/internal/substitution"
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

func (f *fakeItems) UpdateCondition(_ context.Context, id string, condition repository.Condition) error {
	if f.conditions == nil {
		f.conditions = make(map[string]repository.Condition)
	}
	f.conditions[id] = condition
	return nil
}

type fakeReservations struct {
	affected     []*repository.Reservation
	updated      []*repository.Reservation
	states       map[string]repository.ReservationState
	updateErrFor string
}

func (f *fakeReservations) GetActiveOverlapping(_ context.Context, itemID string, _ time.Time, _ *time.Time, _ string) ([]*repository.Reservation, error) {
	var out []*repository.Reservation
	for _, resv := range f.affected {
		for _, id := range resv.ItemIDs {
			if id == itemID {
				out = append(out, resv)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeReservations) Update(_ context.Context, resv *repository.Reservation) error {
	if resv.ID == f.updateErrFor {
		return errors.New("update failed")
	}
	f.updated = append(f.updated, resv)
	return nil
}

func (f *fakeReservations) UpdateState(_ context.Context, id string, to repository.ReservationState, _ ...repository.ReservationState) (bool, error) {
	if f.states == nil {
		f.states = make(map[string]repository.ReservationState)
	}
	f.states[id] = to
	return true, nil
}

type fakeMaintenance struct {
	created []*repository.MaintenanceRecord
}

func (f *fakeMaintenance) Create(_ context.Context, rec *repository.MaintenanceRecord) error {
	f.created = append(f.created, rec)
	return nil
}

type fakeIndex struct {
	available map[string][]*repository.Item
}

func (f *fakeIndex) GetAvailable(_ context.Context, categoryID string, _, _ time.Time, _ string) ([]*repository.Item, error) {
	return f.available[categoryID], nil
}

func (f *fakeIndex) Cheapest(items []*repository.Item, _, _ time.Time) (*repository.Item, error) {
	if len(items) == 0 {
		return nil, errors.New("no candidate items")
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.BasePrice < best.BasePrice {
			best = item
		}
	}
	return best, nil
}

func date(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func reservation(id string, itemIDs ...string) *repository.Reservation {
	return &repository.Reservation{
		ID:        id,
		ItemIDs:   itemIDs,
		StartDate: date("2025-03-10"),
		EndDate:   date("2025-03-15"),
		State:     repository.StateNotStarted,
	}
}

func TestEngine_ReplaceItem(t *testing.T) {
	ctx := context.Background()
	brokenItem := &repository.Item{ID: "item-1", CategoryID: "cat-1", BasePrice: 20}

	t.Run("swaps the cheapest substitute into affected reservations", func(t *testing.T) {
		items := &fakeItems{items: map[string]*repository.Item{"item-1": brokenItem}}
		resvs := &fakeReservations{affected: []*repository.Reservation{reservation("resv-1", "item-1")}}
		maintenance := &fakeMaintenance{}
		index := &fakeIndex{available: map[string][]*repository.Item{
			"cat-1": {
				{ID: "item-2", CategoryID: "cat-1", BasePrice: 30},
				{ID: "item-3", CategoryID: "cat-1", BasePrice: 10},
			},
		}}
		engine := substitution.NewEngine(items, resvs, maintenance, index, zap.NewNop())

		end := date("2025-03-20")
		err := engine.ReplaceItem(ctx, "item-1", repository.ConditionBroken, date("2025-03-10"), &end)
		require.NoError(t, err)

		assert.Equal(t, repository.ConditionBroken, items.conditions["item-1"])
		require.Len(t, maintenance.created, 1)
		assert.Equal(t, []string{"item-1"}, maintenance.created[0].ItemIDs)
		require.Len(t, resvs.updated, 1)
		assert.Equal(t, []string{"item-3"}, resvs.updated[0].ItemIDs)
	})

	t.Run("open-ended window keeps nil end date", func(t *testing.T) {
		items := &fakeItems{items: map[string]*repository.Item{"item-1": brokenItem}}
		resvs := &fakeReservations{}
		maintenance := &fakeMaintenance{}
		engine := substitution.NewEngine(items, resvs, maintenance, &fakeIndex{}, zap.NewNop())

		err := engine.ReplaceItem(ctx, "item-1", repository.ConditionNotAvailable, date("2025-03-10"), nil)
		require.NoError(t, err)

		require.Len(t, maintenance.created, 1)
		assert.Nil(t, maintenance.created[0].EndDate)
	})

	t.Run("cancels reservation when no substitute exists", func(t *testing.T) {
		items := &fakeItems{items: map[string]*repository.Item{"item-1": brokenItem}}
		resvs := &fakeReservations{affected: []*repository.Reservation{reservation("resv-1", "item-1")}}
		engine := substitution.NewEngine(items, resvs, &fakeMaintenance{}, &fakeIndex{}, zap.NewNop())

		end := date("2025-03-20")
		err := engine.ReplaceItem(ctx, "item-1", repository.ConditionBroken, date("2025-03-10"), &end)
		require.NoError(t, err)

		assert.Equal(t, repository.StateCancelled, resvs.states["resv-1"])
		assert.Empty(t, resvs.updated)
	})

	t.Run("candidate already in the reservation is not reused", func(t *testing.T) {
		items := &fakeItems{items: map[string]*repository.Item{"item-1": brokenItem}}
		resvs := &fakeReservations{affected: []*repository.Reservation{reservation("resv-1", "item-1", "item-2")}}
		index := &fakeIndex{available: map[string][]*repository.Item{
			"cat-1": {{ID: "item-2", CategoryID: "cat-1", BasePrice: 5}},
		}}
		engine := substitution.NewEngine(items, resvs, &fakeMaintenance{}, index, zap.NewNop())

		end := date("2025-03-20")
		err := engine.ReplaceItem(ctx, "item-1", repository.ConditionBroken, date("2025-03-10"), &end)
		require.NoError(t, err)

		// item-2 is the reservation's other item, so the booking has no
		// usable substitute and gets cancelled.
		assert.Equal(t, repository.StateCancelled, resvs.states["resv-1"])
	})

	t.Run("one failing reservation does not block the rest", func(t *testing.T) {
		items := &fakeItems{items: map[string]*repository.Item{"item-1": brokenItem}}
		resvs := &fakeReservations{
			affected: []*repository.Reservation{
				reservation("resv-1", "item-1"),
				reservation("resv-2", "item-1"),
			},
			updateErrFor: "resv-1",
		}
		index := &fakeIndex{available: map[string][]*repository.Item{
			"cat-1": {{ID: "item-2", CategoryID: "cat-1", BasePrice: 10}},
		}}
		engine := substitution.NewEngine(items, resvs, &fakeMaintenance{}, index, zap.NewNop())

		end := date("2025-03-20")
		err := engine.ReplaceItem(ctx, "item-1", repository.ConditionBroken, date("2025-03-10"), &end)
		require.NoError(t, err)

		require.Len(t, resvs.updated, 1)
		assert.Equal(t, "resv-2", resvs.updated[0].ID)
	})
}

func TestEngine_SubstituteWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("repairs reservations without touching the item", func(t *testing.T) {
		item := &repository.Item{ID: "item-1", CategoryID: "cat-1", BasePrice: 20}
		items := &fakeItems{items: map[string]*repository.Item{"item-1": item}}
		resvs := &fakeReservations{affected: []*repository.Reservation{reservation("resv-1", "item-1")}}
		maintenance := &fakeMaintenance{}
		index := &fakeIndex{available: map[string][]*repository.Item{
			"cat-1": {{ID: "item-9", CategoryID: "cat-1", BasePrice: 15}},
		}}
		engine := substitution.NewEngine(items, resvs, maintenance, index, zap.NewNop())

		err := engine.SubstituteWindow(ctx, "item-1", date("2025-03-11"), date("2025-03-18"))
		require.NoError(t, err)

		assert.Empty(t, items.conditions)
		assert.Empty(t, maintenance.created)
		require.Len(t, resvs.updated, 1)
		assert.Equal(t, []string{"item-9"}, resvs.updated[0].ItemIDs)
	})
}
