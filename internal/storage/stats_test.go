package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootgestor/glosas/internal/model"
)

func TestStatsByAccount(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := newTestRule("TARIFAS", "%MAYOR VALOR%")
	require.NoError(t, store.CreateRule(ctx, rule))

	seed := func(disputeID string, cents int64) {
		item := newTestDispute("acct-1", disputeID)
		item.DisputedCents = cents
		_, err := store.UpsertDispute(ctx, item)
		require.NoError(t, err)
	}

	// Six records: three end PROCESSED, one ERROR, two stay PENDING.
	seed("d-1", 10000)
	seed("d-2", 20000)
	seed("d-3", 5000)
	seed("d-4", 7500)
	seed("d-5", 1000)
	seed("d-6", 1000)

	now := time.Now().UTC()
	require.NoError(t, store.MarkDisputeProcessed(ctx, "acct-1", "d-1", rule.ID, rule.ResponseText, now))
	require.NoError(t, store.MarkDisputeProcessed(ctx, "acct-1", "d-2", rule.ID, rule.ResponseText, now))
	require.NoError(t, store.MarkDisputeProcessed(ctx, "acct-1", "d-3", rule.ID, rule.ResponseText, now))
	require.NoError(t, store.MarkDisputeFailed(ctx, "acct-1", "d-4", "no matching rule"))

	stats, err := store.StatsByAccount(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	st := stats[0]
	assert.Equal(t, "acct-1", st.AccountID)
	assert.Equal(t, 6, st.Total)
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 1, st.Errored)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, int64(44500), st.TotalDisputedCents)
	require.NotNil(t, st.LastProcessedAt)
	assert.WithinDuration(t, now, *st.LastProcessedAt, time.Second)
}

func TestStatsByAccount_MultipleAccounts(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	a := newTestDispute("acct-a", "d-1")
	a.DisputedCents = 100
	_, err := store.UpsertDispute(ctx, a)
	require.NoError(t, err)

	b := newTestDispute("acct-b", "d-1")
	b.DisputedCents = 200
	_, err = store.UpsertDispute(ctx, b)
	require.NoError(t, err)

	stats, err := store.StatsByAccount(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Ordered by account ID.
	assert.Equal(t, "acct-a", stats[0].AccountID)
	assert.Equal(t, "acct-b", stats[1].AccountID)
	assert.Equal(t, int64(100), stats[0].TotalDisputedCents)
	assert.Equal(t, int64(200), stats[1].TotalDisputedCents)
	assert.Nil(t, stats[0].LastProcessedAt)
}

func TestStatsByAccount_EmptyLedger(t *testing.T) {
	store := setupTestStorage(t)

	stats, err := store.StatsByAccount(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestStatsByAccount_IsReadOnly(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertDispute(ctx, newTestDispute("acct-1", "d-1"))
	require.NoError(t, err)

	_, err = store.StatsByAccount(ctx)
	require.NoError(t, err)

	got, err := store.GetDispute(ctx, "acct-1", "d-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)
}
