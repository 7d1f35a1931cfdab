package repository

import (
	"context"
	"sync/atomic"
	"time"

	"possync/internal/domain"
	"possync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository prefers the Redis repository and degrades to the
// in-memory one when Redis is unreachable, probing for recovery after a
// minute. Sync never blocks on a cache outage.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverStateRepository) GetRoom(ctx context.Context) (*models.DiscoveredRoom, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		room, err := r.primary.GetRoom(ctx)
		if err == nil {
			r.isDown.Store(false)
			return room, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetRoom(ctx)
}

func (r *FailoverStateRepository) SetRoom(ctx context.Context, room *models.DiscoveredRoom) error {
	// Keep the fallback warm so a Redis outage does not lose the cache.
	_ = r.fallback.SetRoom(ctx, room)

	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.SetRoom(ctx, room)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}

	return nil
}

func (r *FailoverStateRepository) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		status, err := r.primary.GetSyncStatus(ctx)
		if err == nil {
			r.isDown.Store(false)
			return status, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetSyncStatus(ctx)
}

func (r *FailoverStateRepository) SetSyncStatus(ctx context.Context, status *models.SyncStatus) error {
	_ = r.fallback.SetSyncStatus(ctx, status)

	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.SetSyncStatus(ctx, status)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}

	return nil
}
