package models

import "time"

// DiscoveredRoom is a cached result of the room-listing fallback.
type DiscoveredRoom struct {
	RoomID       string    `json:"room_id"`
	RoomName     string    `json:"room_name"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SyncStatus is a small snapshot shared with UI indicators and kiosk peers.
type SyncStatus struct {
	Syncing    bool      `json:"syncing"`
	QueueSize  int       `json:"queue_size"`
	LastSyncAt time.Time `json:"last_sync_at"`
	LastError  string    `json:"last_error,omitempty"`
}
