package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/models"
)

func setupRedisRepo(t *testing.T) (*RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateRepository(client, time.Hour), mr
}

func testRoom() *models.DiscoveredRoom {
	return &models.DiscoveredRoom{
		RoomID:       "9",
		RoomName:     "Vault",
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestRedisStateRepository_RoomRoundTrip(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	got, err := repo.GetRoom(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SetRoom(ctx, testRoom()))

	got, err = repo.GetRoom(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9", got.RoomID)
	assert.Equal(t, "Vault", got.RoomName)
}

func TestRedisStateRepository_RoomTTL(t *testing.T) {
	repo, mr := setupRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetRoom(ctx, testRoom()))

	mr.FastForward(2 * time.Hour)

	got, err := repo.GetRoom(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStateRepository_SyncStatusRoundTrip(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	status := &models.SyncStatus{QueueSize: 3, LastError: "SERVER_ERROR (status 502): bad gateway"}
	require.NoError(t, repo.SetSyncStatus(ctx, status))

	got, err := repo.GetSyncStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.QueueSize)
	assert.Equal(t, status.LastError, got.LastError)
}

func TestRedisStateRepository_NilClient(t *testing.T) {
	repo := NewRedisStateRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetRoom(ctx)
	assert.Error(t, err)
	assert.Error(t, repo.SetRoom(ctx, testRoom()))
}

func TestMemoryStateRepository_TTLExpiry(t *testing.T) {
	repo := NewMemoryStateRepository(10 * time.Millisecond)
	ctx := context.Background()

	room := testRoom()
	room.DiscoveredAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.SetRoom(ctx, room))

	got, err := repo.GetRoom(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

type failingRepo struct {
	err error
}

func (f *failingRepo) GetRoom(context.Context) (*models.DiscoveredRoom, error) { return nil, f.err }
func (f *failingRepo) SetRoom(context.Context, *models.DiscoveredRoom) error   { return f.err }
func (f *failingRepo) GetSyncStatus(context.Context) (*models.SyncStatus, error) {
	return nil, f.err
}
func (f *failingRepo) SetSyncStatus(context.Context, *models.SyncStatus) error { return f.err }

func TestFailoverStateRepository_FallsBack(t *testing.T) {
	logger := zerolog.Nop()
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(&failingRepo{err: errors.New("down")}, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetRoom(ctx, testRoom()))

	got, err := repo.GetRoom(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9", got.RoomID)
}

func TestFailoverStateRepository_PrimaryPreferred(t *testing.T) {
	logger := zerolog.Nop()
	primary, _ := setupRedisRepo(t)
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetRoom(ctx, testRoom()))

	// The write reached the primary, not just the warm fallback.
	got, err := primary.GetRoom(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9", got.RoomID)
}

func TestFailoverStateRepository_RecoversAfterOutage(t *testing.T) {
	logger := zerolog.Nop()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	primary := NewRedisStateRepository(client, time.Hour)
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	mr.SetError("connection refused")
	require.NoError(t, repo.SetRoom(ctx, testRoom()))
	got, err := repo.GetRoom(ctx)
	require.NoError(t, err)
	require.NotNil(t, got) // served by the warm fallback
	assert.True(t, repo.isDown.Load())

	mr.SetError("")
	repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	require.NoError(t, repo.SetRoom(ctx, testRoom()))
	assert.False(t, repo.isDown.Load())
}
