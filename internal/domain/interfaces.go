package domain

import (
	"context"

	"possync/internal/models"
)

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// CredentialSource supplies outbound auth material to the sync engine.
type CredentialSource interface {
	AccessToken() string
	SessionCookieHeader() string
}

// SecretStore persists a long-lived secret in OS-native secure storage.
// Load returns "" (not an error) when the secret is absent or the backing
// store is unreachable; that state is equivalent to being logged out.
type SecretStore interface {
	Save(account, secret string) error
	Load(account string) string
	Clear(account string) error
}

// StateRepository caches discovery results and the sync status snapshot,
// optionally shared with kiosk peers through Redis.
type StateRepository interface {
	GetRoom(ctx context.Context) (*models.DiscoveredRoom, error)
	SetRoom(ctx context.Context, room *models.DiscoveredRoom) error
	GetSyncStatus(ctx context.Context) (*models.SyncStatus, error)
	SetSyncStatus(ctx context.Context, status *models.SyncStatus) error
}

// Notifier delivers operator alerts; implementations must be nil-safe
// no-ops when unconfigured.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
