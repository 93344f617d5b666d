// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/bootgestor/glosas/internal/model"
)

// DisputeFilter defines filtering options for ledger queries.
type DisputeFilter struct {
	Category string
	State    model.ProcessingState
	Limit    int
}

// UpsertOutcome describes what an idempotent dispute upsert actually did.
type UpsertOutcome int

// Upsert outcomes.
const (
	// UpsertCreated means a new PENDING row was inserted.
	UpsertCreated UpsertOutcome = iota
	// UpsertRefreshed means an existing PENDING row had its descriptive
	// fields updated from the incoming record.
	UpsertRefreshed
	// UpsertSkippedTerminal means the row already reached a terminal state
	// and was left completely untouched.
	UpsertSkippedTerminal
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Rule store operations
	CreateRule(ctx context.Context, rule *model.Rule) error
	UpdateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	ListActiveRules(ctx context.Context, category string) ([]model.Rule, error)
	DeactivateRule(ctx context.Context, id int64) error
	SeedDefaultRules(ctx context.Context) (int, error)

	// Ledger operations
	UpsertDispute(ctx context.Context, item *model.DisputeItem) (UpsertOutcome, error)
	GetDispute(ctx context.Context, accountID, disputeID string) (*model.DisputeItem, error)
	ListDisputes(ctx context.Context, filter DisputeFilter) ([]model.DisputeItem, error)
	MarkDisputeProcessed(ctx context.Context, accountID, disputeID string, ruleID int64, response string, processedAt time.Time) error
	MarkDisputeFailed(ctx context.Context, accountID, disputeID, errorMessage string) error
	ResetDispute(ctx context.Context, accountID, disputeID string) error

	// Audit log operations
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, accountID, disputeID string) ([]model.AuditEntry, error)

	// Statistics
	StatsByAccount(ctx context.Context) ([]AccountStats, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// IngestSummary shows the results of one ingestion batch.
type IngestSummary struct {
	Created         int
	Refreshed       int
	SkippedTerminal int
}

// Total returns the number of records the batch contained.
func (s IngestSummary) Total() int {
	return s.Created + s.Refreshed + s.SkippedTerminal
}

// ProcessingSummary shows the results of one processing pass.
type ProcessingSummary struct {
	RunID     string
	Processed int
	Errored   int
	Skipped   int
	Duration  time.Duration
}

// Total returns the number of records the pass attempted.
func (s ProcessingSummary) Total() int {
	return s.Processed + s.Errored + s.Skipped
}

// AccountStats is the per-account rollup over the processing ledger.
type AccountStats struct {
	LastProcessedAt    *time.Time
	AccountID          string
	Total              int
	Processed          int
	Errored            int
	Pending            int
	TotalDisputedCents int64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
