package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutboxMutation is a queued local mutation awaiting push to the booking
// service. Rows are processed FIFO by CreatedAt and deleted only after a
// confirmed remote success.
type OutboxMutation struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Payload      string    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	AttemptCount int       `json:"attempt_count"`
}

// BookingCreatePayload is the payload for MutationBookingCreate.
type BookingCreatePayload struct {
	LocalID      string    `json:"localId"`
	CustomerName string    `json:"customerName"`
	StartsAt     time.Time `json:"startsAt"`
	EndsAt       time.Time `json:"endsAt"`
}

// RoomUpdatePayload is the payload for MutationRoomUpdate.
type RoomUpdatePayload struct {
	RoomID string `json:"roomId"`
	Status string `json:"status"`
}

// DecodeBookingCreate parses the mutation payload as a booking creation.
func (m *OutboxMutation) DecodeBookingCreate() (BookingCreatePayload, error) {
	var p BookingCreatePayload
	if m.Type != MutationBookingCreate {
		return p, fmt.Errorf("mutation %s has type %s, not %s", m.ID, m.Type, MutationBookingCreate)
	}
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return p, nil
}

// DecodeRoomUpdate parses the mutation payload as a room status change.
func (m *OutboxMutation) DecodeRoomUpdate() (RoomUpdatePayload, error) {
	var p RoomUpdatePayload
	if m.Type != MutationRoomUpdate {
		return p, fmt.Errorf("mutation %s has type %s, not %s", m.ID, m.Type, MutationRoomUpdate)
	}
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return p, nil
}

// EncodePayload serializes a typed payload for storage in the outbox.
func EncodePayload(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(raw), nil
}
