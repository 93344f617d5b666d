// Package testutil provides shared test fixtures: an in-memory migrated
// database plus helpers for seeding rules and dispute items.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/service"
	"github.com/bootgestor/glosas/internal/storage"
)

// TestDB represents a test database with associated helpers.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database, runs migrations, and
// registers cleanup. Each call returns an isolated database.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustCreateRule inserts an active rule or fails the test.
func (db *TestDB) MustCreateRule(category, pattern, response string) *model.Rule {
	db.t.Helper()

	rule := &model.Rule{
		Category:     category,
		Pattern:      pattern,
		ResponseText: response,
		Active:       true,
	}
	if err := db.Storage.CreateRule(context.Background(), rule); err != nil {
		db.t.Fatalf("failed to create rule %q: %v", pattern, err)
	}
	return rule
}

// MustUpsertDispute inserts a dispute item or fails the test.
func (db *TestDB) MustUpsertDispute(item *model.DisputeItem) service.UpsertOutcome {
	db.t.Helper()

	outcome, err := db.Storage.UpsertDispute(context.Background(), item)
	if err != nil {
		db.t.Fatalf("failed to upsert dispute %s: %v", item.Key(), err)
	}
	return outcome
}

// NewDispute builds a valid dispute item with sensible defaults for tests.
func NewDispute(accountID, disputeID, category, justification string) *model.DisputeItem {
	return &model.DisputeItem{
		AccountID:        accountID,
		DisputeID:        disputeID,
		ItemID:           "item-1",
		ItemDescription:  "HOSPEDAJE",
		Category:         category,
		ShortDescription: fmt.Sprintf("dispute %s", disputeID),
		Justification:    justification,
		DisputedCents:    10000,
		OriginalStatus:   "GLOSADO",
		State:            model.StatePending,
	}
}

// WithTransaction executes the given function within a transaction that is
// rolled back when the function returns.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// MustMarkProcessed drives a dispute to PROCESSED or fails the test.
func (db *TestDB) MustMarkProcessed(accountID, disputeID string, ruleID int64, response string) {
	db.t.Helper()

	err := db.Storage.MarkDisputeProcessed(context.Background(), accountID, disputeID, ruleID, response, time.Now().UTC())
	if err != nil {
		db.t.Fatalf("failed to mark dispute %s/%s processed: %v", accountID, disputeID, err)
	}
}

// MustMarkFailed drives a dispute to ERROR or fails the test.
func (db *TestDB) MustMarkFailed(accountID, disputeID, message string) {
	db.t.Helper()

	err := db.Storage.MarkDisputeFailed(context.Background(), accountID, disputeID, message)
	if err != nil {
		db.t.Fatalf("failed to mark dispute %s/%s failed: %v", accountID, disputeID, err)
	}
}
