package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"possync/internal/models"
)

// DB owns the durable on-disk state of the POS client: the booking
// snapshot, the mutation outbox and a generic meta key/value table.
// One instance is constructed at process start and shared by reference.
type DB struct {
	db           *sql.DB
	path         string
	newlyCreated bool
	logger       *zerolog.Logger
}

// New creates the data directory and database file if absent, enables
// write-ahead journaling and creates the tables idempotently. Safe to call
// on every process start.
func New(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	_, statErr := os.Stat(path)
	newlyCreated := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// WAL keeps committed writes across an unclean exit and lets the IPC
	// layer read while a sync cycle writes.
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	d := &DB{db: db, path: path, newlyCreated: newlyCreated, logger: logger}

	if err := d.ensureDeviceID(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Bool("newly_created", newlyCreated).Msg("Local store initialized")
	return d, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meta (
            key TEXT PRIMARY KEY,
            value TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            server_id TEXT,
            customer_name TEXT NOT NULL,
            starts_at TEXT NOT NULL,
            ends_at TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            updated_at DATETIME NOT NULL,
            dirty INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS outbox (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            attempt_count INTEGER NOT NULL DEFAULT 0
        )`,

		`CREATE INDEX IF NOT EXISTS idx_outbox_created_at ON outbox(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dirty ON bookings(dirty)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (d *DB) ensureDeviceID(ctx context.Context) error {
	existing, err := d.GetMeta(ctx, models.MetaKeyDeviceID)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	return d.SetMeta(ctx, models.MetaKeyDeviceID, uuid.NewString())
}

// Handle returns the underlying connection. Fails with ErrNotInitialized
// when called on a zero-value DB (guards IPC handlers during startup).
func (d *DB) Handle() (*sql.DB, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}
	return d.db, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// NewlyCreated reports whether New created the file on this start.
func (d *DB) NewlyCreated() bool { return d.newlyCreated }

func (d *DB) PingContext(ctx context.Context) error {
	if d == nil || d.db == nil {
		return ErrNotInitialized
	}
	return d.db.PingContext(ctx)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}
	return d.db.QueryContext(ctx, query, args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d == nil || d.db == nil {
		return nil, ErrNotInitialized
	}
	return d.db.BeginTx(ctx, opts)
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
