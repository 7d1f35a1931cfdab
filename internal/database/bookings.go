package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"possync/internal/models"
)

// CreateBookingWithMutation inserts the optimistic local booking and its
// outbox mutation in one transaction, so a crash cannot leave a dirty
// booking without a queued mutation. Returns the outbox id and the queue
// size after the insert.
func (d *DB) CreateBookingWithMutation(ctx context.Context, booking *models.Booking, mutationType, payload string) (string, int, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	queryBooking := `INSERT INTO bookings (id, server_id, customer_name, starts_at, ends_at, status, updated_at, dirty)
	                 VALUES (?, NULL, ?, ?, ?, ?, ?, 1)`
	_, err = tx.ExecContext(ctx, queryBooking,
		booking.ID,
		booking.CustomerName,
		booking.StartsAt.UTC().Format(time.RFC3339),
		booking.EndsAt.UTC().Format(time.RFC3339),
		booking.Status,
		now,
	)
	if err != nil {
		return "", 0, fmt.Errorf("failed to insert booking: %w", err)
	}

	outboxID := uuid.NewString()
	queryOutbox := `INSERT INTO outbox (id, type, payload, created_at, attempt_count)
	                VALUES (?, ?, ?, ?, 0)`
	_, err = tx.ExecContext(ctx, queryOutbox, outboxID, mutationType, payload, now.UnixMilli())
	if err != nil {
		return "", 0, fmt.Errorf("failed to insert outbox mutation: %w", err)
	}

	var queueSize int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&queueSize); err != nil {
		return "", 0, fmt.Errorf("failed to count outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.UpdatedAt = now
	booking.Dirty = true
	return outboxID, queueSize, nil
}

// GetBooking returns a booking by local id.
func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT id, server_id, customer_name, starts_at, ends_at, status, updated_at, dirty
	          FROM bookings WHERE id = ?`

	var (
		booking  models.Booking
		serverID sql.NullString
		startsAt string
		endsAt   string
		dirty    int
	)
	err := d.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&serverID,
		&booking.CustomerName,
		&startsAt,
		&endsAt,
		&booking.Status,
		&booking.UpdatedAt,
		&dirty,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if serverID.Valid {
		booking.ServerID = &serverID.String
	}
	booking.Dirty = dirty != 0
	if booking.StartsAt, err = time.Parse(time.RFC3339, startsAt); err != nil {
		return nil, fmt.Errorf("failed to parse starts_at: %w", err)
	}
	if booking.EndsAt, err = time.Parse(time.RFC3339, endsAt); err != nil {
		return nil, fmt.Errorf("failed to parse ends_at: %w", err)
	}

	return &booking, nil
}

// MarkBookingClean clears the dirty flag after a confirmed remote push.
// server_id is write-once: an already-confirmed booking keeps its id even
// if a duplicate ack arrives.
func (d *DB) MarkBookingClean(ctx context.Context, id, serverID string) error {
	var err error
	if serverID == "" {
		_, err = d.ExecContext(ctx,
			`UPDATE bookings SET dirty = 0, updated_at = ? WHERE id = ?`,
			time.Now(), id)
	} else {
		_, err = d.ExecContext(ctx,
			`UPDATE bookings SET dirty = 0, updated_at = ?, server_id = COALESCE(server_id, ?) WHERE id = ?`,
			time.Now(), serverID, id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark booking clean: %w", err)
	}
	return nil
}

// UpdateBookingStatus updates the local status snapshot.
func (d *DB) UpdateBookingStatus(ctx context.Context, id, status string) error {
	_, err := d.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil
}

// CountDirtyBookings returns the number of bookings not yet reconciled.
func (d *DB) CountDirtyBookings(ctx context.Context) (int, error) {
	var count int
	err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE dirty = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty bookings: %w", err)
	}
	return count, nil
}
