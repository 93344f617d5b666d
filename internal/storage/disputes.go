package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/service"
)

const disputeColumns = `id, account_id, dispute_id, item_id, item_description, category,
	short_description, justification, disputed_cents, original_status,
	applied_response, matched_rule_id, processing_state, processed_at, error_message, created_at`

// UpsertDispute performs the idempotent ingest keyed by (account_id,
// dispute_id). New pairs are inserted as PENDING; an existing PENDING row has
// its descriptive fields refreshed; a terminal row is left completely
// untouched, fields and audit trail alike. The write is a single statement,
// so the guarantee holds under concurrent ingestion of the same pair.
func (s *SQLiteStorage) UpsertDispute(ctx context.Context, item *model.DisputeItem) (service.UpsertOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return upsertDispute(ctx, s.db, item)
}

func (t *sqliteTransaction) UpsertDispute(ctx context.Context, item *model.DisputeItem) (service.UpsertOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return upsertDispute(ctx, t.tx, item)
}

func upsertDispute(ctx context.Context, q dbtx, item *model.DisputeItem) (service.UpsertOutcome, error) {
	if err := validateDispute(item); err != nil {
		return 0, err
	}

	// Pre-read only to label the outcome; correctness does not depend on it.
	var existingState string
	preErr := q.QueryRowContext(ctx,
		`SELECT processing_state FROM dispute_items WHERE account_id = ? AND dispute_id = ?`,
		item.AccountID, item.DisputeID,
	).Scan(&existingState)
	if preErr != nil && !errors.Is(preErr, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check dispute state: %w", preErr)
	}

	query := `
		INSERT INTO dispute_items (
			account_id, dispute_id, item_id, item_description, category,
			short_description, justification, disputed_cents, original_status,
			processing_state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'PENDING')
		ON CONFLICT(account_id, dispute_id) DO UPDATE SET
			item_id = excluded.item_id,
			item_description = excluded.item_description,
			category = excluded.category,
			short_description = excluded.short_description,
			justification = excluded.justification,
			disputed_cents = excluded.disputed_cents,
			original_status = excluded.original_status
		WHERE dispute_items.processing_state = 'PENDING'
	`

	result, err := q.ExecContext(ctx, query,
		item.AccountID, item.DisputeID,
		nullIfEmpty(item.ItemID), nullIfEmpty(item.ItemDescription), item.Category,
		nullIfEmpty(item.ShortDescription), item.Justification, item.DisputedCents,
		nullIfEmpty(item.OriginalStatus),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert dispute %s: %w", item.Key(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	switch {
	case rowsAffected == 0:
		return service.UpsertSkippedTerminal, nil
	case errors.Is(preErr, sql.ErrNoRows):
		return service.UpsertCreated, nil
	default:
		return service.UpsertRefreshed, nil
	}
}

// GetDispute retrieves one dispute item by its natural key.
func (s *SQLiteStorage) GetDispute(ctx context.Context, accountID, disputeID string) (*model.DisputeItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getDispute(ctx, s.db, accountID, disputeID)
}

func (t *sqliteTransaction) GetDispute(ctx context.Context, accountID, disputeID string) (*model.DisputeItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getDispute(ctx, t.tx, accountID, disputeID)
}

func getDispute(ctx context.Context, q dbtx, accountID, disputeID string) (*model.DisputeItem, error) {
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if err := validateString(disputeID, "disputeID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + disputeColumns + ` FROM dispute_items WHERE account_id = ? AND dispute_id = ?`

	item, err := scanDispute(q.QueryRowContext(ctx, query, accountID, disputeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: dispute %s/%s", common.ErrNotFound, accountID, disputeID)
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return item, nil
}

// ListDisputes retrieves dispute items matching the filter, oldest first.
func (s *SQLiteStorage) ListDisputes(ctx context.Context, filter service.DisputeFilter) ([]model.DisputeItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listDisputes(ctx, s.db, filter)
}

func (t *sqliteTransaction) ListDisputes(ctx context.Context, filter service.DisputeFilter) ([]model.DisputeItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listDisputes(ctx, t.tx, filter)
}

func listDisputes(ctx context.Context, q dbtx, filter service.DisputeFilter) ([]model.DisputeItem, error) {
	var conditions []string
	var args []any

	if filter.State != "" {
		if !filter.State.Valid() {
			return nil, fmt.Errorf("invalid processing state %q", filter.State)
		}
		conditions = append(conditions, "processing_state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + disputeColumns + ` FROM dispute_items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.DisputeItem
	for rows.Next() {
		item, scanErr := scanDispute(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", scanErr)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating disputes: %w", err)
	}

	return items, nil
}

// MarkDisputeProcessed moves a PENDING record to PROCESSED, recording the
// matched rule and the applied response. The guard on processing_state makes
// the transition single-shot: a record that already reached a terminal state
// is reported as common.ErrAlreadyTerminal and left unchanged.
func (s *SQLiteStorage) MarkDisputeProcessed(ctx context.Context, accountID, disputeID string, ruleID int64, response string, processedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return markDisputeProcessed(ctx, s.db, accountID, disputeID, ruleID, response, processedAt)
}

func (t *sqliteTransaction) MarkDisputeProcessed(ctx context.Context, accountID, disputeID string, ruleID int64, response string, processedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return markDisputeProcessed(ctx, t.tx, accountID, disputeID, ruleID, response, processedAt)
}

func markDisputeProcessed(ctx context.Context, q dbtx, accountID, disputeID string, ruleID int64, response string, processedAt time.Time) error {
	if err := validateString(response, "response"); err != nil {
		return err
	}

	query := `
		UPDATE dispute_items
		SET applied_response = ?, matched_rule_id = ?, processing_state = 'PROCESSED', processed_at = ?, error_message = NULL
		WHERE account_id = ? AND dispute_id = ? AND processing_state = 'PENDING'
	`

	result, err := q.ExecContext(ctx, query, response, ruleID, processedAt, accountID, disputeID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: rule %d does not exist", common.ErrReferentialViolation, ruleID)
		}
		return fmt.Errorf("failed to mark dispute processed: %w", err)
	}

	return requirePendingTransition(ctx, q, result, accountID, disputeID)
}

// MarkDisputeFailed moves a PENDING record to ERROR with the given message.
func (s *SQLiteStorage) MarkDisputeFailed(ctx context.Context, accountID, disputeID, errorMessage string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return markDisputeFailed(ctx, s.db, accountID, disputeID, errorMessage)
}

func (t *sqliteTransaction) MarkDisputeFailed(ctx context.Context, accountID, disputeID, errorMessage string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return markDisputeFailed(ctx, t.tx, accountID, disputeID, errorMessage)
}

func markDisputeFailed(ctx context.Context, q dbtx, accountID, disputeID, errorMessage string) error {
	if err := validateString(errorMessage, "errorMessage"); err != nil {
		return err
	}

	query := `
		UPDATE dispute_items
		SET processing_state = 'ERROR', error_message = ?, applied_response = NULL, matched_rule_id = NULL
		WHERE account_id = ? AND dispute_id = ? AND processing_state = 'PENDING'
	`

	result, err := q.ExecContext(ctx, query, errorMessage, accountID, disputeID)
	if err != nil {
		return fmt.Errorf("failed to mark dispute failed: %w", err)
	}

	return requirePendingTransition(ctx, q, result, accountID, disputeID)
}

// ResetDispute is the explicit operator override that re-opens a terminal
// record: outcome fields are cleared and the state returns to PENDING. Audit
// history is never touched.
func (s *SQLiteStorage) ResetDispute(ctx context.Context, accountID, disputeID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return resetDispute(ctx, s.db, accountID, disputeID)
}

func (t *sqliteTransaction) ResetDispute(ctx context.Context, accountID, disputeID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return resetDispute(ctx, t.tx, accountID, disputeID)
}

func resetDispute(ctx context.Context, q dbtx, accountID, disputeID string) error {
	query := `
		UPDATE dispute_items
		SET processing_state = 'PENDING', applied_response = NULL, matched_rule_id = NULL,
			processed_at = NULL, error_message = NULL
		WHERE account_id = ? AND dispute_id = ? AND processing_state IN ('PROCESSED', 'ERROR')
	`

	result, err := q.ExecContext(ctx, query, accountID, disputeID)
	if err != nil {
		return fmt.Errorf("failed to reset dispute: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := getDispute(ctx, q, accountID, disputeID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: dispute %s/%s", common.ErrNotTerminal, accountID, disputeID)
	}

	return nil
}

// requirePendingTransition distinguishes a missing row from an
// already-terminal one after a guarded state transition affected no rows.
func requirePendingTransition(ctx context.Context, q dbtx, result sql.Result, accountID, disputeID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := getDispute(ctx, q, accountID, disputeID); err != nil {
		return err
	}
	return fmt.Errorf("%w: dispute %s/%s", common.ErrAlreadyTerminal, accountID, disputeID)
}

func scanDispute(row scanner) (*model.DisputeItem, error) {
	var item model.DisputeItem
	var itemID, itemDescription, shortDescription, originalStatus sql.NullString
	var appliedResponse, errorMessage sql.NullString
	var matchedRuleID sql.NullInt64
	var processedAt sql.NullTime

	if err := row.Scan(
		&item.ID, &item.AccountID, &item.DisputeID, &itemID, &itemDescription, &item.Category,
		&shortDescription, &item.Justification, &item.DisputedCents, &originalStatus,
		&appliedResponse, &matchedRuleID, &item.State, &processedAt, &errorMessage, &item.CreatedAt,
	); err != nil {
		return nil, err
	}

	item.ItemID = itemID.String
	item.ItemDescription = itemDescription.String
	item.ShortDescription = shortDescription.String
	item.OriginalStatus = originalStatus.String
	item.AppliedResponse = appliedResponse.String
	item.ErrorMessage = errorMessage.String
	if matchedRuleID.Valid {
		item.MatchedRuleID = &matchedRuleID.Int64
	}
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}

	return &item, nil
}
