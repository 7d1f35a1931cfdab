package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBookingCreate(t *testing.T) {
	starts := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)
	payload, err := EncodePayload(BookingCreatePayload{
		LocalID:      "local-1",
		CustomerName: "Test",
		StartsAt:     starts,
		EndsAt:       starts.Add(time.Hour),
	})
	require.NoError(t, err)

	m := OutboxMutation{ID: "m1", Type: MutationBookingCreate, Payload: payload}
	got, err := m.DecodeBookingCreate()
	require.NoError(t, err)
	assert.Equal(t, "local-1", got.LocalID)
	assert.True(t, got.StartsAt.Equal(starts))
}

func TestDecodeBookingCreate_WrongType(t *testing.T) {
	m := OutboxMutation{ID: "m1", Type: MutationRoomUpdate, Payload: `{}`}
	_, err := m.DecodeBookingCreate()
	assert.Error(t, err)
}

func TestDecodeBookingCreate_MalformedJSON(t *testing.T) {
	m := OutboxMutation{ID: "m1", Type: MutationBookingCreate, Payload: `{broken`}
	_, err := m.DecodeBookingCreate()
	assert.Error(t, err)
}

func TestDecodeRoomUpdate(t *testing.T) {
	m := OutboxMutation{ID: "m1", Type: MutationRoomUpdate, Payload: `{"roomId":"9","status":"closed"}`}
	got, err := m.DecodeRoomUpdate()
	require.NoError(t, err)
	assert.Equal(t, "9", got.RoomID)
	assert.Equal(t, "closed", got.Status)
}

func TestBookingCreatePayload_WireNames(t *testing.T) {
	payload, err := EncodePayload(BookingCreatePayload{LocalID: "x"})
	require.NoError(t, err)
	assert.Contains(t, payload, `"localId"`)
	assert.Contains(t, payload, `"customerName"`)
	assert.Contains(t, payload, `"startsAt"`)
	assert.Contains(t, payload, `"endsAt"`)
}
