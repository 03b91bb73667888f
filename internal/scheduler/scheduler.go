// Package scheduler runs the periodic reconciliation pass: closing elapsed
// maintenance windows and flagging overdue reservations as delayed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkhalmer/rentflow/internal/clock"
	"github.com/dkhalmer/rentflow/internal/metrics"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type ItemRepository interface {
	RestoreCondition(ctx context.Context, ids []string) error
}

type ReservationRepository interface {
	GetOverdue(ctx context.Context, now time.Time) ([]*repository.Reservation, error)
	UpdateState(ctx context.Context, id string, to repository.ReservationState, from ...repository.ReservationState) (bool, error)
}

type MaintenanceRepository interface {
	GetElapsed(ctx context.Context, now time.Time) ([]*repository.MaintenanceRecord, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
}

type Substituter interface {
	SubstituteWindow(ctx context.Context, itemID string, start, end time.Time) error
}

type Notifier interface {
	Emit(ctx context.Context, customerID, reservationID string, state repository.ReservationState) error
}

type Config struct {
	Interval time.Duration
	// DelayLookahead bounds how far ahead the delay pass frees an overrun
	// item for upcoming bookings.
	DelayLookahead time.Duration
}

type Scheduler struct {
	items          ItemRepository
	reservations   ReservationRepository
	maintenance    MaintenanceRepository
	substituter    Substituter
	notifier       Notifier
	clock          clock.Clock
	config         Config
	logger         *zap.Logger
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func New(
	items ItemRepository,
	reservations ReservationRepository,
	maintenance MaintenanceRepository,
	substituter Substituter,
	notifier Notifier,
	clk clock.Clock,
	config Config,
	logger *zap.Logger,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.DelayLookahead <= 0 {
		config.DelayLookahead = 2 * 24 * time.Hour
	}
	return &Scheduler{
		items:          items,
		reservations:   reservations,
		maintenance:    maintenance,
		substituter:    substituter,
		notifier:       notifier,
		clock:          clk,
		config:         config,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting reconciliation scheduler", zap.Duration("interval", s.config.Interval))
	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Pass(ctx); err != nil {
				s.logger.Error("reconciliation pass failed", zap.Error(err))
			}
		case <-s.shutdownSignal:
			s.logger.Info("reconciliation scheduler stopping")
			return
		case <-ctx.Done():
			s.Shutdown()
			return
		}
	}
}

func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.shutdownSignal)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.logger.Info("reconciliation scheduler shutdown complete")
		case <-shutdownCtx.Done():
			s.logger.Warn("reconciliation scheduler shutdown timed out")
		}
	})
}

// Pass runs both reconciliation jobs once. Each job keeps going past
// individual record failures; only a failed scan aborts.
func (s *Scheduler) Pass(ctx context.Context) error {
	now := s.clock.Now()
	metrics.SchedulerPassesTotal.Inc()

	if err := s.closeElapsedMaintenance(ctx, now); err != nil {
		return err
	}
	return s.flagOverdueReservations(ctx, now)
}

// closeElapsedMaintenance restores items from maintenance windows whose end
// date has passed and marks the records completed. Condition is restored
// first: a crash between the two writes only means a redundant restore on
// the next pass.
func (s *Scheduler) closeElapsedMaintenance(ctx context.Context, now time.Time) error {
	records, err := s.maintenance.GetElapsed(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to scan elapsed maintenance records: %w", err)
	}

	for _, rec := range records {
		if err := s.items.RestoreCondition(ctx, rec.ItemIDs); err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("maintenance_close").Inc()
			s.logger.Error("failed to restore item condition",
				zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}

		closed, err := s.maintenance.MarkCompleted(ctx, rec.ID)
		if err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("maintenance_close").Inc()
			s.logger.Error("failed to complete maintenance record",
				zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		if closed {
			metrics.MaintenanceClosedTotal.Inc()
			s.logger.Info("maintenance window closed",
				zap.String("record_id", rec.ID),
				zap.Strings("item_ids", rec.ItemIDs))
		}
	}
	return nil
}

// flagOverdueReservations moves overrun in_progress reservations to delayed
// and reassigns their items on upcoming bookings. Already-delayed
// reservations are rescanned every pass so bookings created since the
// transition still get a substitute.
func (s *Scheduler) flagOverdueReservations(ctx context.Context, now time.Time) error {
	overdue, err := s.reservations.GetOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to scan overdue reservations: %w", err)
	}

	for _, resv := range overdue {
		if resv.State == repository.StateInProgress {
			changed, err := s.reservations.UpdateState(ctx, resv.ID, repository.StateDelayed, repository.StateInProgress)
			if err != nil {
				metrics.OperationErrorsTotal.WithLabelValues("delay_flag").Inc()
				s.logger.Error("failed to flag reservation delayed",
					zap.String("reservation_id", resv.ID), zap.Error(err))
				continue
			}
			if changed {
				s.logger.Warn("reservation overdue, flagged delayed",
					zap.String("reservation_id", resv.ID),
					zap.Time("end_date", resv.EndDate))
				if err := s.notifier.Emit(ctx, resv.CustomerID, resv.ID, repository.StateDelayed); err != nil {
					s.logger.Error("failed to emit delay notification",
						zap.String("reservation_id", resv.ID), zap.Error(err))
				}
			}
		}

		// The item is still in the customer's hands; bookings starting
		// tomorrow or later within the lookahead get another item.
		windowStart := now.Add(24 * time.Hour)
		windowEnd := now.Add(s.config.DelayLookahead)
		for _, itemID := range resv.ItemIDs {
			if err := s.substituter.SubstituteWindow(ctx, itemID, windowStart, windowEnd); err != nil {
				metrics.OperationErrorsTotal.WithLabelValues("delay_substitute").Inc()
				s.logger.Error("failed to substitute overdue item",
					zap.String("reservation_id", resv.ID),
					zap.String("item_id", itemID),
					zap.Error(err))
			}
		}
	}
	return nil
}
