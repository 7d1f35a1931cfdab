package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := New(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := New(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestNew_DeviceIDGenerated(t *testing.T) {
	db := setupTestDB(t)

	deviceID, err := db.GetMeta(context.Background(), models.MetaKeyDeviceID)
	require.NoError(t, err)
	assert.NotEmpty(t, deviceID)
}

func TestNew_DeviceIDStableAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := New(dbPath, &logger)
	require.NoError(t, err)
	first, err := db.GetMeta(ctx, models.MetaKeyDeviceID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	second, err := db.GetMeta(ctx, models.MetaKeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestMeta_SetGetUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	val, err := db.GetMeta(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, db.SetMeta(ctx, "k", "v1"))
	require.NoError(t, db.SetMeta(ctx, "k", "v2"))

	val, err = db.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}
