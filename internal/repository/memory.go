package repository

import (
	"context"
	"sync"
	"time"

	"possync/internal/models"
)

// MemoryStateRepository keeps discovery and sync state in process memory.
// Used standalone on single-kiosk installs and as the failover fallback.
type MemoryStateRepository struct {
	mu   sync.RWMutex
	room *models.DiscoveredRoom
	sync *models.SyncStatus
	ttl  time.Duration
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{ttl: ttl}
}

func (r *MemoryStateRepository) GetRoom(ctx context.Context) (*models.DiscoveredRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room == nil {
		return nil, nil
	}
	if r.ttl > 0 && time.Since(r.room.DiscoveredAt) > r.ttl {
		return nil, nil
	}
	return r.room, nil
}

func (r *MemoryStateRepository) SetRoom(ctx context.Context, room *models.DiscoveredRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = room
	return nil
}

func (r *MemoryStateRepository) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sync, nil
}

func (r *MemoryStateRepository) SetSyncStatus(ctx context.Context, status *models.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync = status
	return nil
}
