package postgresql

import (
	"context"

	"github.com/dkhalmer/rentflow/internal/db"
	"github.com/dkhalmer/rentflow/internal/repository"
)

type NotificationRepo struct {
	db db.DB
}

func NewNotificationRepo(db db.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const insertNotification = `
        INSERT INTO notifications (id, customer_id, reservation_id, state, checked, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

func (r *NotificationRepo) Create(ctx context.Context, n *repository.Notification) error {
	_, err := r.db.Exec(ctx, insertNotification,
		n.ID, n.CustomerID, n.ReservationID, n.State, n.Checked, n.CreatedAt)
	return err
}

// CreateTx writes the record inside the caller's transaction so it commits
// atomically with its outbox task.
func (r *NotificationRepo) CreateTx(ctx context.Context, tx db.Tx, n *repository.Notification) error {
	_, err := tx.Exec(ctx, insertNotification,
		n.ID, n.CustomerID, n.ReservationID, n.State, n.Checked, n.CreatedAt)
	return err
}

func (r *NotificationRepo) ListByCustomer(ctx context.Context, customerID string) ([]*repository.Notification, error) {
	var ns []*repository.Notification
	err := r.db.Select(ctx, &ns, `
        SELECT * FROM notifications WHERE customer_id = $1 ORDER BY created_at DESC
    `, customerID)
	return ns, err
}

func (r *NotificationRepo) MarkChecked(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "UPDATE notifications SET checked = true WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
