package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"possync/internal/config"
	"possync/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	roomKey       = "possync:discovered_room"
	syncStatusKey = "possync:sync_status"
)

// RedisStateRepository shares discovery results and the sync status across
// kiosk processes on the same venue network.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStateRepository) GetRoom(ctx context.Context) (*models.DiscoveredRoom, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, roomKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from redis: %w", err)
	}

	var room models.DiscoveredRoom
	if err := json.Unmarshal([]byte(val), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &room, nil
}

func (r *RedisStateRepository) SetRoom(ctx context.Context, room *models.DiscoveredRoom) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	if err := r.client.Set(ctx, roomKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set room in redis: %w", err)
	}

	return nil
}

func (r *RedisStateRepository) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, syncStatusKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status from redis: %w", err)
	}

	var status models.SyncStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync status: %w", err)
	}

	return &status, nil
}

func (r *RedisStateRepository) SetSyncStatus(ctx context.Context, status *models.SyncStatus) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}

	if err := r.client.Set(ctx, syncStatusKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set sync status in redis: %w", err)
	}

	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
