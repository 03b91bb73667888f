// Package notify persists reservation notifications and hands them to the
// broker through a transactional outbox: the record and its outbox task
// commit together, the publisher delivers later.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

const Topic = "reservation_events"

type NotificationRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, n *repository.Notification) error
}

type OutboxTaskRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
}

// Event is the payload published to the broker for every state transition.
type Event struct {
	NotificationID string                      `json:"notification_id"`
	CustomerID     string                      `json:"customer_id"`
	ReservationID  string                      `json:"reservation_id"`
	State          repository.ReservationState `json:"state"`
	OccurredAt     time.Time                   `json:"occurred_at"`
}

type Sink struct {
	db            db.DB
	notifications NotificationRepository
	outbox        OutboxTaskRepository
}

func NewSink(db db.DB, notifications NotificationRepository, outbox OutboxTaskRepository) *Sink {
	return &Sink{
		db:            db,
		notifications: notifications,
		outbox:        outbox,
	}
}

func (s *Sink) Emit(ctx context.Context, customerID, reservationID string, state repository.ReservationState) error {
	now := time.Now().UTC()
	n := &repository.Notification{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		ReservationID: reservationID,
		State:         state,
		Checked:       false,
		CreatedAt:     now,
	}

	payload, err := json.Marshal(Event{
		NotificationID: n.ID,
		CustomerID:     customerID,
		ReservationID:  reservationID,
		State:          state,
		OccurredAt:     now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin notification transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := s.notifications.CreateTx(ctx, tx, n); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	if err := s.outbox.CreateTx(ctx, tx, &repository.OutboxTask{
		Payload: payload,
		Topic:   Topic,
	}); err != nil {
		return fmt.Errorf("failed to enqueue notification event: %w", err)
	}

	return tx.Commit(ctx)
}
