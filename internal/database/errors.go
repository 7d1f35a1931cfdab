package database

import "errors"

var (
	// ErrNotInitialized is returned when the store is used before New.
	ErrNotInitialized = errors.New("database not initialized")

	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrServerIDSet guards the write-once server_id column.
	ErrServerIDSet = errors.New("server id already set")
)
