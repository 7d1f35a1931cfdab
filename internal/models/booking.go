package models

import "time"

// Booking is the local optimistic snapshot of a reservation. ServerID is
// nil until the remote service confirms creation and is written exactly once.
type Booking struct {
	ID           string    `json:"id"`
	ServerID     *string   `json:"server_id"`
	CustomerName string    `json:"customer_name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"` // PENDING, CONFIRMED, CANCELLED
	UpdatedAt    time.Time `json:"updated_at"`
	Dirty        bool      `json:"dirty"`
}
