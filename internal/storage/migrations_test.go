package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running migrations again is a no-op.
	require.NoError(t, store.Migrate(ctx))
}

func TestMigrate_ActiveRulesView(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := newTestRule("TARIFAS", "%MAYOR VALOR%")
	require.NoError(t, store.CreateRule(ctx, rule))

	retired := newTestRule("TARIFAS", "%RETIRADO%")
	retired.Active = false
	require.NoError(t, store.CreateRule(ctx, retired))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM active_rules").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrate_UpdatedAtTrigger(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := newTestRule("TARIFAS", "%MAYOR VALOR%")
	require.NoError(t, store.CreateRule(ctx, rule))

	before, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)

	rule.ResponseText = "Respuesta revisada."
	require.NoError(t, store.UpdateRule(ctx, rule))

	after, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
}
