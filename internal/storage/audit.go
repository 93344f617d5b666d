package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bootgestor/glosas/internal/model"
)

// AppendAudit writes one immutable audit entry. Appending is the only
// mutating operation on the log; nothing in the engine updates or deletes
// entries afterwards.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return appendAudit(ctx, s.db, entry)
}

func (t *sqliteTransaction) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return appendAudit(ctx, t.tx, entry)
}

func appendAudit(ctx context.Context, q dbtx, entry *model.AuditEntry) error {
	if err := validateAudit(entry); err != nil {
		return err
	}

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_log (account_id, dispute_id, action, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		entry.AccountID, entry.DisputeID, string(entry.Action),
		nullIfEmpty(entry.Detail), entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}
	entry.ID = id

	return nil
}

// ListAudit returns the audit trail for one dispute item, oldest first.
func (s *SQLiteStorage) ListAudit(ctx context.Context, accountID, disputeID string) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listAudit(ctx, s.db, accountID, disputeID)
}

func (t *sqliteTransaction) ListAudit(ctx context.Context, accountID, disputeID string) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listAudit(ctx, t.tx, accountID, disputeID)
}

func listAudit(ctx context.Context, q dbtx, accountID, disputeID string) ([]model.AuditEntry, error) {
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if err := validateString(disputeID, "disputeID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, account_id, dispute_id, action, COALESCE(detail, ''), occurred_at
		FROM audit_log
		WHERE account_id = ? AND dispute_id = ?
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := q.QueryContext(ctx, query, accountID, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		if err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.DisputeID,
			&entry.Action, &entry.Detail, &entry.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
