// Package engine implements rule-driven processing of disputed invoice items.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/pattern"
	"github.com/bootgestor/glosas/internal/service"
)

// NoMatchingRuleMessage is the fixed error message recorded on a dispute item
// when no active rule covers its justification text. The host process keys on
// it to route unanswerable items to a human.
const NoMatchingRuleMessage = "no matching rule"

// Engine orchestrates ingestion and the processing pass over the ledger.
// Every record's outcome (state transition plus its audit entries) commits as
// one database transaction, so an interrupted pass never leaves a partially
// written record behind.
type Engine struct {
	storage    service.Storage
	onProgress func(done, total int)
	retry      service.RetryOptions
	workers    int
}

// Config holds configuration options for the engine.
type Config struct {
	// OnProgress, when set, is invoked after each record of a processing
	// pass completes. Calls are serialized.
	OnProgress func(done, total int)
	// Retry governs retries of per-record transactions on transient
	// database contention.
	Retry service.RetryOptions
	// Workers is the number of concurrent record processors. Records are
	// independent, so any value is safe; the default is conservative
	// because SQLite serializes writers anyway.
	Workers int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// New creates a new engine with the default configuration.
func New(storage service.Storage) *Engine {
	return NewWithConfig(storage, DefaultConfig())
}

// NewWithConfig creates a new engine with custom configuration.
func NewWithConfig(storage service.Storage, config Config) *Engine {
	defaults := DefaultConfig()
	workers := config.Workers
	if workers <= 0 {
		workers = defaults.Workers
	}
	retry := config.Retry
	if retry.MaxAttempts <= 0 {
		retry = defaults.Retry
	}
	return &Engine{
		storage:    storage,
		workers:    workers,
		retry:      retry,
		onProgress: config.OnProgress,
	}
}

// Ingest upserts a batch of raw dispute records into the ledger. Records not
// seen before are created in PENDING and get an `ingested` audit entry;
// records still PENDING are refreshed; terminal records are left untouched.
// Each record's upsert and audit entry commit together.
func (e *Engine) Ingest(ctx context.Context, items []model.DisputeItem) (service.IngestSummary, error) {
	var summary service.IngestSummary

	for i := range items {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		item := &items[i]
		var outcome service.UpsertOutcome
		err := common.WithRetry(ctx, func() error {
			var ingestErr error
			outcome, ingestErr = e.ingestOne(ctx, item)
			return ingestErr
		}, e.retry)
		if err != nil {
			return summary, fmt.Errorf("failed to ingest dispute %s: %w", item.Key(), err)
		}

		switch outcome {
		case service.UpsertCreated:
			summary.Created++
		case service.UpsertRefreshed:
			summary.Refreshed++
		case service.UpsertSkippedTerminal:
			summary.SkippedTerminal++
		}
	}

	slog.Info("ingestion complete",
		"created", summary.Created,
		"refreshed", summary.Refreshed,
		"skipped_terminal", summary.SkippedTerminal)

	return summary, nil
}

func (e *Engine) ingestOne(ctx context.Context, item *model.DisputeItem) (service.UpsertOutcome, error) {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	outcome, err := tx.UpsertDispute(ctx, item)
	if err != nil {
		return 0, err
	}

	if outcome == service.UpsertCreated {
		entry := &model.AuditEntry{
			AccountID: item.AccountID,
			DisputeID: item.DisputeID,
			Action:    model.ActionIngested,
			Detail:    fmt.Sprintf("category %s, disputed %d cents", item.Category, item.DisputedCents),
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return outcome, nil
}

// ProcessPending runs one processing pass: every PENDING record (optionally
// restricted to one category) is matched against a consistent snapshot of the
// active rules and driven to a terminal state. A storage failure halts the
// pass; the record being worked on stays PENDING because its transaction
// rolls back, so a re-run picks up exactly where this one stopped.
func (e *Engine) ProcessPending(ctx context.Context, category string) (service.ProcessingSummary, error) {
	start := time.Now()
	summary := service.ProcessingSummary{RunID: uuid.New().String()}

	matcher, pending, err := e.snapshot(ctx, category)
	if err != nil {
		return summary, err
	}

	slog.Info("starting processing pass",
		"run_id", summary.RunID,
		"pending", len(pending),
		"active_rules", matcher.RuleCount(),
		"category", category)

	if len(pending) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		firstErr  error
		completed int
	)
	jobs := make(chan model.DisputeItem)
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := e.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				var outcome recordOutcome
				procErr := common.WithRetry(passCtx, func() error {
					var oneErr error
					outcome, oneErr = e.processOne(passCtx, matcher, summary.RunID, item)
					return oneErr
				}, e.retry)

				mu.Lock()
				if procErr != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("dispute %s: %w", item.Key(), procErr)
					}
					mu.Unlock()
					cancel()
					return
				}
				switch outcome {
				case outcomeProcessed:
					summary.Processed++
				case outcomeErrored:
					summary.Errored++
				case outcomeSkipped:
					summary.Skipped++
				}
				completed++
				if e.onProgress != nil {
					e.onProgress(completed, len(pending))
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, item := range pending {
		select {
		case <-passCtx.Done():
			break dispatch
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()

	summary.Duration = time.Since(start)

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		common.LogError(firstErr, "processing pass halted", common.Fields{
			"run_id":    summary.RunID,
			"processed": summary.Processed,
			"errored":   summary.Errored,
		})
		return summary, firstErr
	}

	slog.Info("processing pass complete",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"errored", summary.Errored,
		"skipped", summary.Skipped,
		"duration", summary.Duration)

	return summary, nil
}

// snapshot loads the active rule set and the pending records inside one read
// transaction, so every match in the pass sees the same rule configuration
// even if rules are edited while the pass runs.
func (e *Engine) snapshot(ctx context.Context, category string) (*pattern.Matcher, []model.DisputeItem, error) {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rules, err := tx.ListActiveRules(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	pending, err := tx.ListDisputes(ctx, service.DisputeFilter{
		State:    model.StatePending,
		Category: category,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pending disputes: %w", err)
	}

	matcher, err := pattern.NewMatcher(rules)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build matcher: %w", err)
	}

	return matcher, pending, nil
}

type recordOutcome int

const (
	outcomeProcessed recordOutcome = iota
	outcomeErrored
	outcomeSkipped
)

// processOne drives a single record to a terminal state. The state update
// and its audit entries commit atomically; on any storage error the
// transaction rolls back and the record remains PENDING.
func (e *Engine) processOne(ctx context.Context, m *pattern.Matcher, runID string, item model.DisputeItem) (recordOutcome, error) {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rule, matchErr := m.Match(item.Category, item.Justification)
	if matchErr != nil && !errors.Is(matchErr, common.ErrAmbiguousMatch) {
		return 0, matchErr
	}

	lookup := &model.AuditEntry{
		AccountID: item.AccountID,
		DisputeID: item.DisputeID,
		Action:    model.ActionRuleLookup,
	}
	transition := &model.AuditEntry{
		AccountID: item.AccountID,
		DisputeID: item.DisputeID,
	}

	var outcome recordOutcome
	switch {
	case matchErr != nil:
		// Ambiguous: surfaced as a distinct terminal error, never resolved
		// by arbitrary row order.
		lookup.Detail = matchErr.Error()
		transition.Action = model.ActionProcessingFailed
		transition.Detail = fmt.Sprintf("%s (run %s)", matchErr.Error(), runID)
		err = tx.MarkDisputeFailed(ctx, item.AccountID, item.DisputeID, matchErr.Error())
		outcome = outcomeErrored

	case rule == nil:
		lookup.Detail = fmt.Sprintf("no active rule for category %s", item.Category)
		transition.Action = model.ActionProcessingFailed
		transition.Detail = fmt.Sprintf("%s (run %s)", NoMatchingRuleMessage, runID)
		err = tx.MarkDisputeFailed(ctx, item.AccountID, item.DisputeID, NoMatchingRuleMessage)
		outcome = outcomeErrored

	default:
		lookup.Detail = fmt.Sprintf("matched rule %d, pattern %q", rule.ID, rule.Pattern)
		transition.Action = model.ActionResponseApplied
		transition.Detail = fmt.Sprintf("rule %d applied (run %s)", rule.ID, runID)
		err = tx.MarkDisputeProcessed(ctx, item.AccountID, item.DisputeID, rule.ID, rule.ResponseText, time.Now().UTC())
		outcome = outcomeProcessed
	}

	if err != nil {
		// Another pass or worker already finished this record; leave it be.
		if errors.Is(err, common.ErrAlreadyTerminal) {
			return outcomeSkipped, nil
		}
		return 0, err
	}

	if err := tx.AppendAudit(ctx, lookup); err != nil {
		return 0, err
	}
	if err := tx.AppendAudit(ctx, transition); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit record outcome: %w", err)
	}

	return outcome, nil
}

// Reset is the explicit operator override for a terminal record: it returns
// the record to PENDING so the next pass picks it up again, and records the
// intervention in the audit log. Nothing is ever removed from the log.
func (e *Engine) Reset(ctx context.Context, accountID, disputeID string) error {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ResetDispute(ctx, accountID, disputeID); err != nil {
		return err
	}

	entry := &model.AuditEntry{
		AccountID: accountID,
		DisputeID: disputeID,
		Action:    model.ActionReset,
		Detail:    "manual reset to PENDING",
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	slog.Info("dispute reset to PENDING", "account_id", accountID, "dispute_id", disputeID)
	return nil
}
