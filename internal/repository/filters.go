package repository

import "time"

// ReservationFilter narrows reservation listings. Zero values mean "any".
type ReservationFilter struct {
	CustomerID string
	StaffID    string
	State      ReservationState
	From       *time.Time
	To         *time.Time
}

type MaintenanceFilter struct {
	ItemID    string
	Completed *bool
	From      *time.Time
	To        *time.Time
}

type InvoiceFilter struct {
	CustomerID    string
	StaffID       string
	ReservationID string
}
