package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("not found")

// Condition describes the physical state of a rentable item. Items in
// condition not_available never show up as substitution candidates.
type Condition string

const (
	ConditionPerfect      Condition = "perfect"
	ConditionGood         Condition = "good"
	ConditionSuitable     Condition = "suitable"
	ConditionBroken       Condition = "broken"
	ConditionNotAvailable Condition = "not_available"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionPerfect, ConditionGood, ConditionSuitable, ConditionBroken, ConditionNotAvailable:
		return true
	}
	return false
}

// OutOfService reports whether the condition takes the item out of the
// rentable pool entirely.
func (c Condition) OutOfService() bool {
	return c == ConditionBroken || c == ConditionNotAvailable
}

type ReservationState string

const (
	StateNotStarted ReservationState = "not_started"
	StateInProgress ReservationState = "in_progress"
	StateDelayed    ReservationState = "delayed"
	StateTerminated ReservationState = "terminated"
	StateCancelled  ReservationState = "cancelled"
)

// Terminal states never transition again and do not occupy items.
func (s ReservationState) Terminal() bool {
	return s == StateTerminated || s == StateCancelled
}

type CategoryKind string

const (
	CategorySingle CategoryKind = "single"
	CategoryBundle CategoryKind = "bundle"
)

type Item struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	CategoryID string    `db:"category_id"`
	BasePrice  int       `db:"base_price"`
	Condition  Condition `db:"condition"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Category is a tagged variant: a single rentable type (Components empty)
// or a fixed bundle of component category ids. The kind is resolved once at
// creation instead of being re-derived from list emptiness.
type Category struct {
	ID          string       `db:"id"`
	Name        string       `db:"name"`
	Description string       `db:"description"`
	Kind        CategoryKind `db:"kind"`
	Components  []string     `db:"components"`
	CreatedAt   time.Time    `db:"created_at"`
}

type Reservation struct {
	ID         string           `db:"id"`
	CustomerID string           `db:"customer_id"`
	StaffID    string           `db:"staff_id"`
	CategoryID string           `db:"category_id"`
	ItemIDs    []string         `db:"item_ids"`
	Price      int              `db:"price"`
	StartDate  time.Time        `db:"start_date"`
	EndDate    time.Time        `db:"end_date"`
	State      ReservationState `db:"state"`
	CreatedAt  time.Time        `db:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at"`
}

// MaintenanceRecord keeps a set of items out of circulation over a window.
// A nil EndDate means the outage is open-ended and only a manual condition
// reset brings the items back.
type MaintenanceRecord struct {
	ID        string     `db:"id"`
	ItemIDs   []string   `db:"item_ids"`
	StartDate time.Time  `db:"start_date"`
	EndDate   *time.Time `db:"end_date"`
	Completed bool       `db:"completed"`
	CreatedAt time.Time  `db:"created_at"`
}

// Invoice is written exactly once, at termination, and never updated.
// ReturnedConditions holds the item id to returned condition map as JSON.
type Invoice struct {
	ID                 string    `db:"id"`
	ReservationID      string    `db:"reservation_id"`
	CustomerID         string    `db:"customer_id"`
	StaffID            string    `db:"staff_id"`
	Price              int       `db:"price"`
	StartDate          time.Time `db:"start_date"`
	EndDate            time.Time `db:"end_date"`
	ReturnedConditions string    `db:"returned_conditions"`
	Notes              string    `db:"notes"`
	CreatedAt          time.Time `db:"created_at"`
}

type Notification struct {
	ID            string           `db:"id"`
	CustomerID    string           `db:"customer_id"`
	ReservationID string           `db:"reservation_id"`
	State         ReservationState `db:"state"`
	Checked       bool             `db:"checked"`
	CreatedAt     time.Time        `db:"created_at"`
}

type Customer struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

type Staff struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// OutboxTask carries a notification event until the publisher hands it to
// the broker.
type OutboxTask struct {
	ID          uuid.UUID  `db:"id"`
	Status      TaskStatus `db:"status"`
	Payload     []byte     `db:"payload"`
	Topic       string     `db:"topic"`
	Attempts    int        `db:"attempts"`
	LastError   *string    `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CompletedAt *time.Time `db:"completed_at"`
}
