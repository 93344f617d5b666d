package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootgestor/glosas/internal/model"
)

func TestAppendAndListAudit(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	entries := []model.AuditEntry{
		{AccountID: "acct-1", DisputeID: "disp-1", Action: model.ActionIngested, OccurredAt: base},
		{AccountID: "acct-1", DisputeID: "disp-1", Action: model.ActionRuleLookup, Detail: "matched rule 3", OccurredAt: base.Add(time.Second)},
		{AccountID: "acct-1", DisputeID: "disp-1", Action: model.ActionResponseApplied, Detail: "rule 3 applied", OccurredAt: base.Add(2 * time.Second)},
		{AccountID: "acct-1", DisputeID: "disp-2", Action: model.ActionIngested, OccurredAt: base},
	}
	for i := range entries {
		require.NoError(t, store.AppendAudit(ctx, &entries[i]))
		assert.NotZero(t, entries[i].ID)
	}

	got, err := store.ListAudit(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Oldest first, correlated by the natural key.
	assert.Equal(t, model.ActionIngested, got[0].Action)
	assert.Equal(t, model.ActionRuleLookup, got[1].Action)
	assert.Equal(t, model.ActionResponseApplied, got[2].Action)
	assert.Equal(t, "matched rule 3", got[1].Detail)
	assert.Empty(t, got[0].Detail)

	other, err := store.ListAudit(ctx, "acct-1", "disp-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestAppendAudit_DefaultsOccurredAt(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	entry := &model.AuditEntry{
		AccountID: "acct-1",
		DisputeID: "disp-1",
		Action:    model.ActionReset,
	}
	require.NoError(t, store.AppendAudit(ctx, entry))
	assert.WithinDuration(t, time.Now().UTC(), entry.OccurredAt, 5*time.Second)
}

func TestAppendAudit_Validation(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	err := store.AppendAudit(ctx, &model.AuditEntry{DisputeID: "disp-1", Action: model.ActionIngested})
	require.Error(t, err)

	err = store.AppendAudit(ctx, &model.AuditEntry{AccountID: "acct-1", DisputeID: "disp-1"})
	require.Error(t, err)

	err = store.AppendAudit(ctx, nil)
	require.Error(t, err)
}

func TestListAudit_EmptyTrail(t *testing.T) {
	store := setupTestStorage(t)

	got, err := store.ListAudit(context.Background(), "acct-1", "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}
