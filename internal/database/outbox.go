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

// Enqueue inserts a mutation at the tail of the outbox and returns its id.
func (d *DB) Enqueue(ctx context.Context, mutationType, payload string) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO outbox (id, type, payload, created_at, attempt_count)
	          VALUES (?, ?, ?, ?, 0)`
	_, err := d.ExecContext(ctx, query, id, mutationType, payload, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return id, nil
}

// QueueSize counts all queued mutations.
func (d *DB) QueueSize(ctx context.Context) (int, error) {
	var count int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return count, nil
}

// HasPending is a cheap existence probe, used for the cycle result's
// remaining field instead of a full count.
func (d *DB) HasPending(ctx context.Context) (bool, error) {
	var one int
	err := d.QueryRowContext(ctx, `SELECT 1 FROM outbox LIMIT 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe outbox: %w", err)
	}
	return true, nil
}

// PeekOldest returns the mutation with the smallest created_at without
// removing it, ties broken by insertion order. Returns nil when empty.
func (d *DB) PeekOldest(ctx context.Context) (*models.OutboxMutation, error) {
	query := `SELECT id, type, payload, created_at, attempt_count
	          FROM outbox ORDER BY created_at ASC, rowid ASC LIMIT 1`
	m, err := d.scanMutation(d.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to peek outbox: %w", err)
	}
	return m, nil
}

// ListByType returns all queued mutations of one type in FIFO order.
func (d *DB) ListByType(ctx context.Context, mutationType string) ([]models.OutboxMutation, error) {
	query := `SELECT id, type, payload, created_at, attempt_count
	          FROM outbox WHERE type = ? ORDER BY created_at ASC, rowid ASC`
	rows, err := d.QueryContext(ctx, query, mutationType)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox by type: %w", err)
	}
	defer rows.Close()

	var mutations []models.OutboxMutation
	for rows.Next() {
		m, err := d.scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		mutations = append(mutations, *m)
	}
	return mutations, rows.Err()
}

// Delete removes a mutation; called only after a confirmed remote success
// (or a deliberate permanent-failure drop).
func (d *DB) Delete(ctx context.Context, id string) error {
	if _, err := d.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete mutation: %w", err)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter. Kept for diagnostics and
// future backoff policies; each cycle currently retries immediately.
func (d *DB) IncrementAttempt(ctx context.Context, id string) error {
	_, err := d.ExecContext(ctx, `UPDATE outbox SET attempt_count = attempt_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempt: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanMutation(row rowScanner) (*models.OutboxMutation, error) {
	var (
		m         models.OutboxMutation
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.Type, &m.Payload, &createdAt, &m.AttemptCount); err != nil {
		return nil, err
	}
	m.CreatedAt = time.UnixMilli(createdAt)
	return &m, nil
}
