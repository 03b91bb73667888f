package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/metrics"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type ReservationRepository interface {
	GetAllActive(ctx context.Context) ([]*repository.Reservation, error)
}

// ReservationCache keeps non-terminal reservations in memory for the read
// path. The lifecycle service writes through on every mutation; terminal
// states evict.
type ReservationCache struct {
	mu    sync.RWMutex
	cache map[string]*repository.Reservation
	repo  ReservationRepository
	log   *zap.Logger
}

func NewReservationCache(repo ReservationRepository, log *zap.Logger) *ReservationCache {
	return &ReservationCache{
		cache: make(map[string]*repository.Reservation),
		repo:  repo,
		log:   log,
	}
}

func (c *ReservationCache) LoadInitialData(ctx context.Context) error {
	resvs, err := c.repo.GetAllActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, resv := range resvs {
		copied := cloneReservation(resv)
		c.cache[resv.ID] = copied
	}
	metrics.ReservationCacheItems.Set(float64(len(c.cache)))
	c.log.Info("reservation cache warmed", zap.Int("count", len(c.cache)))
	return nil
}

func (c *ReservationCache) Get(id string) (*repository.Reservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resv, found := c.cache[id]
	if !found {
		return nil, false
	}
	return cloneReservation(resv), true
}

func (c *ReservationCache) Set(resv *repository.Reservation) {
	if resv.State.Terminal() {
		c.Delete(resv.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[resv.ID] = cloneReservation(resv)
	metrics.ReservationCacheItems.Set(float64(len(c.cache)))
}

func (c *ReservationCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[id]; found {
		delete(c.cache, id)
		metrics.ReservationCacheItems.Set(float64(len(c.cache)))
	}
}

// cloneReservation copies the item slice too, so callers can mutate their
// copy without racing the cache.
func cloneReservation(resv *repository.Reservation) *repository.Reservation {
	copied := *resv
	copied.ItemIDs = append([]string(nil), resv.ItemIDs...)
	return &copied
}
