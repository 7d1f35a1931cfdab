package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/models"
)

func TestOutbox_QueueSizeGrows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := db.Enqueue(ctx, models.MutationBookingCreate, `{}`)
		require.NoError(t, err)
	}

	size, err := db.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestOutbox_PeekOldestFIFO(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.Enqueue(ctx, models.MutationBookingCreate, `{"n":1}`)
	require.NoError(t, err)
	_, err = db.Enqueue(ctx, models.MutationBookingCreate, `{"n":2}`)
	require.NoError(t, err)

	// Peek must not remove.
	for i := 0; i < 2; i++ {
		item, err := db.PeekOldest(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, first, item.ID)
		assert.Equal(t, `{"n":1}`, item.Payload)
	}

	size, err := db.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestOutbox_PeekOldestEmpty(t *testing.T) {
	db := setupTestDB(t)

	item, err := db.PeekOldest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestOutbox_DeleteAdvancesQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.Enqueue(ctx, models.MutationBookingCreate, `{"n":1}`)
	require.NoError(t, err)
	second, err := db.Enqueue(ctx, models.MutationBookingCreate, `{"n":2}`)
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, first))

	item, err := db.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, second, item.ID)
}

func TestOutbox_HasPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending, err := db.HasPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	id, err := db.Enqueue(ctx, models.MutationBookingCreate, `{}`)
	require.NoError(t, err)

	pending, err = db.HasPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, db.Delete(ctx, id))
	pending, err = db.HasPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestOutbox_IncrementAttempt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, models.MutationBookingCreate, `{}`)
	require.NoError(t, err)

	require.NoError(t, db.IncrementAttempt(ctx, id))
	require.NoError(t, db.IncrementAttempt(ctx, id))

	item, err := db.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 2, item.AttemptCount)
}

func TestOutbox_ListByTypeFIFO(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, models.MutationBookingCreate, `{}`)
	require.NoError(t, err)
	u1, err := db.Enqueue(ctx, models.MutationRoomUpdate, `{"roomId":"1","status":"open"}`)
	require.NoError(t, err)
	u2, err := db.Enqueue(ctx, models.MutationRoomUpdate, `{"roomId":"1","status":"closed"}`)
	require.NoError(t, err)

	updates, err := db.ListByType(ctx, models.MutationRoomUpdate)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, u1, updates[0].ID)
	assert.Equal(t, u2, updates[1].ID)
}
