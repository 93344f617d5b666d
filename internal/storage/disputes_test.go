package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/service"
)

func newTestDispute(accountID, disputeID string) *model.DisputeItem {
	return &model.DisputeItem{
		AccountID:       accountID,
		DisputeID:       disputeID,
		ItemID:          "item-1",
		ItemDescription: "HOSPEDAJE",
		Category:        "TARIFAS",
		Justification:   "MAYOR VALOR COBRADO",
		DisputedCents:   12550,
		OriginalStatus:  "GLOSADO",
		State:           model.StatePending,
	}
}

func TestUpsertDispute_CreatesPending(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	outcome, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)
	assert.Equal(t, service.UpsertCreated, outcome)

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
	assert.Equal(t, int64(12550), got.DisputedCents)
	assert.Nil(t, got.MatchedRuleID)
	assert.Nil(t, got.ProcessedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertDispute_RefreshesPendingRow(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	updated := newTestDispute("acct-1", "disp-1")
	updated.Justification = "MAYOR VALOR COBRADO EN ALOJAMIENTO"
	updated.DisputedCents = 20000

	outcome, err := store.UpsertDispute(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, service.UpsertRefreshed, outcome)

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, "MAYOR VALOR COBRADO EN ALOJAMIENTO", got.Justification)
	assert.Equal(t, int64(20000), got.DisputedCents)

	// Still one row for the key.
	all, err := store.ListDisputes(ctx, service.DisputeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertDispute_SkipsTerminalRow(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)
	require.NoError(t, store.MarkDisputeFailed(ctx, "acct-1", "disp-1", "no matching rule"))

	updated := newTestDispute("acct-1", "disp-1")
	updated.Justification = "NUEVO TEXTO"

	outcome, err := store.UpsertDispute(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, service.UpsertSkippedTerminal, outcome)

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateError, got.State)
	assert.Equal(t, "MAYOR VALOR COBRADO", got.Justification)
	assert.Equal(t, "no matching rule", got.ErrorMessage)
}

func TestUpsertDispute_RejectsInvalidRecords(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	missing := newTestDispute("", "disp-1")
	_, err := store.UpsertDispute(ctx, missing)
	require.Error(t, err)

	negative := newTestDispute("acct-1", "disp-1")
	negative.DisputedCents = -1
	_, err = store.UpsertDispute(ctx, negative)
	require.Error(t, err)
}

func TestMarkDisputeProcessed(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := newTestRule("TARIFAS", "%MAYOR VALOR%")
	require.NoError(t, store.CreateRule(ctx, rule))

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	processedAt := time.Now().UTC()
	require.NoError(t, store.MarkDisputeProcessed(ctx, "acct-1", "disp-1", rule.ID, rule.ResponseText, processedAt))

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateProcessed, got.State)
	assert.Equal(t, rule.ResponseText, got.AppliedResponse)
	require.NotNil(t, got.MatchedRuleID)
	assert.Equal(t, rule.ID, *got.MatchedRuleID)
	require.NotNil(t, got.ProcessedAt)
	assert.Empty(t, got.ErrorMessage)

	// The transition is single-shot.
	err = store.MarkDisputeProcessed(ctx, "acct-1", "disp-1", rule.ID, rule.ResponseText, processedAt)
	assert.ErrorIs(t, err, common.ErrAlreadyTerminal)
}

func TestMarkDisputeProcessed_UnknownRule(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	err = store.MarkDisputeProcessed(ctx, "acct-1", "disp-1", 9999, "respuesta", time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrReferentialViolation)

	// The failed transition left the record untouched.
	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
}

func TestMarkDisputeFailed(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	require.NoError(t, store.MarkDisputeFailed(ctx, "acct-1", "disp-1", "no matching rule"))

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateError, got.State)
	assert.Equal(t, "no matching rule", got.ErrorMessage)
	assert.Empty(t, got.AppliedResponse)
	assert.Nil(t, got.MatchedRuleID)

	err = store.MarkDisputeFailed(ctx, "acct-1", "disp-1", "otra vez")
	assert.ErrorIs(t, err, common.ErrAlreadyTerminal)
}

func TestMarkDispute_NotFound(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	err := store.MarkDisputeFailed(ctx, "acct-1", "missing", "mensaje")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.MarkDisputeProcessed(ctx, "acct-1", "missing", 1, "respuesta", time.Now().UTC())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResetDispute(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	// Resetting a PENDING record is refused.
	err = store.ResetDispute(ctx, "acct-1", "disp-1")
	assert.ErrorIs(t, err, common.ErrNotTerminal)

	require.NoError(t, store.MarkDisputeFailed(ctx, "acct-1", "disp-1", "no matching rule"))
	require.NoError(t, store.ResetDispute(ctx, "acct-1", "disp-1"))

	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
	assert.Empty(t, got.ErrorMessage)
	assert.Empty(t, got.AppliedResponse)
	assert.Nil(t, got.MatchedRuleID)
	assert.Nil(t, got.ProcessedAt)

	err = store.ResetDispute(ctx, "acct-1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListDisputes_Filters(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	first := newTestDispute("acct-1", "disp-1")
	_, err := store.UpsertDispute(ctx, first)
	require.NoError(t, err)

	second := newTestDispute("acct-1", "disp-2")
	second.Category = "MEDICAMENTOS"
	_, err = store.UpsertDispute(ctx, second)
	require.NoError(t, err)

	third := newTestDispute("acct-2", "disp-3")
	_, err = store.UpsertDispute(ctx, third)
	require.NoError(t, err)
	require.NoError(t, store.MarkDisputeFailed(ctx, "acct-2", "disp-3", "no matching rule"))

	pending, err := store.ListDisputes(ctx, service.DisputeFilter{State: model.StatePending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	errored, err := store.ListDisputes(ctx, service.DisputeFilter{State: model.StateError})
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "disp-3", errored[0].DisputeID)

	byCategory, err := store.ListDisputes(ctx, service.DisputeFilter{
		State:    model.StatePending,
		Category: "MEDICAMENTOS",
	})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "disp-2", byCategory[0].DisputeID)

	limited, err := store.ListDisputes(ctx, service.DisputeFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = store.ListDisputes(ctx, service.DisputeFilter{State: "BOGUS"})
	require.Error(t, err)
}

func TestDisputeTransitionWithinTransaction(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "disp-1"))
	require.NoError(t, err)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.MarkDisputeFailed(ctx, "acct-1", "disp-1", "transient"))
	require.NoError(t, tx.Rollback())

	// Rollback left the record PENDING.
	got, err := store.GetDispute(ctx, "acct-1", "disp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
}
