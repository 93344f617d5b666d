package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"
)

const ruleColumns = `id, category, pattern, response_text, document_ref, active, created_at, updated_at`

// CreateRule creates a new response rule. The pair (category, pattern) is
// unique across the whole table; a collision with a different rule is
// reported as common.ErrDuplicateRuleKey.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return createRule(ctx, s.db, rule)
}

func (t *sqliteTransaction) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return createRule(ctx, t.tx, rule)
}

func createRule(ctx context.Context, q dbtx, rule *model.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		INSERT INTO response_rules (category, pattern, response_text, document_ref, active)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		rule.Category, rule.Pattern, rule.ResponseText,
		nullIfEmpty(rule.DocumentRef), rule.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: (%s, %s)", common.ErrDuplicateRuleKey, rule.Category, rule.Pattern)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id

	slog.Info("created response rule", "id", id, "category", rule.Category, "pattern", rule.Pattern)
	return nil
}

// UpdateRule updates an existing rule. The (category, pattern) uniqueness
// check excludes the rule's own row.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return updateRule(ctx, s.db, rule)
}

func (t *sqliteTransaction) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return updateRule(ctx, t.tx, rule)
}

func updateRule(ctx context.Context, q dbtx, rule *model.Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		UPDATE response_rules
		SET category = ?, pattern = ?, response_text = ?, document_ref = ?, active = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		rule.Category, rule.Pattern, rule.ResponseText,
		nullIfEmpty(rule.DocumentRef), rule.Active, rule.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: (%s, %s)", common.ErrDuplicateRuleKey, rule.Category, rule.Pattern)
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, rule.ID)
	}

	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getRule(ctx, s.db, id)
}

func (t *sqliteTransaction) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getRule(ctx, t.tx, id)
}

func getRule(ctx context.Context, q dbtx, id int64) (*model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM response_rules WHERE id = ?`

	rule, err := scanRule(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves every rule, active or not, ordered by category then pattern.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listRules(ctx, s.db, `SELECT `+ruleColumns+` FROM response_rules ORDER BY category, pattern`)
}

func (t *sqliteTransaction) ListRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listRules(ctx, t.tx, `SELECT `+ruleColumns+` FROM response_rules ORDER BY category, pattern`)
}

// ListActiveRules retrieves active rules for a category, ordered by category
// then pattern. Selection between competing rules is the matcher's job; this
// layer only guarantees a stable listing order.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context, category string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listActiveRules(ctx, s.db, category)
}

func (t *sqliteTransaction) ListActiveRules(ctx context.Context, category string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listActiveRules(ctx, t.tx, category)
}

func listActiveRules(ctx context.Context, q dbtx, category string) ([]model.Rule, error) {
	if category == "" {
		return listRules(ctx, q,
			`SELECT `+ruleColumns+` FROM response_rules WHERE active = 1 ORDER BY category, pattern`)
	}
	return listRules(ctx, q,
		`SELECT `+ruleColumns+` FROM response_rules WHERE active = 1 AND category = ? ORDER BY category, pattern`,
		category)
}

func listRules(ctx context.Context, q dbtx, query string, args ...any) ([]model.Rule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// DeactivateRule soft-deletes a rule. Rows are never deleted because
// processed dispute items keep referencing the rule that answered them.
func (s *SQLiteStorage) DeactivateRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return deactivateRule(ctx, s.db, id)
}

func (t *sqliteTransaction) DeactivateRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return deactivateRule(ctx, t.tx, id)
}

func deactivateRule(ctx context.Context, q dbtx, id int64) error {
	result, err := q.ExecContext(ctx, `UPDATE response_rules SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}

	slog.Info("deactivated response rule", "id", id)
	return nil
}

// SeedDefaultRules inserts the stock response configuration carried over from
// the original deployment. Seeding is idempotent: rules already present by
// (category, pattern) are left alone. Returns the number of rules inserted.
func (s *SQLiteStorage) SeedDefaultRules(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return seedDefaultRules(ctx, s.db)
}

func (t *sqliteTransaction) SeedDefaultRules(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return seedDefaultRules(ctx, t.tx)
}

var defaultRules = []model.Rule{
	{
		Category:     "TARIFAS",
		Pattern:      "%MAYOR VALOR COBRADO EN%SERVICIO DE ALOJAMIENTO%",
		ResponseText: "El valor cobrado corresponde a la tarifa autorizada según contrato vigente y normatividad aplicable. Se adjunta soporte tarifario y autorización del servicio.",
		DocumentRef:  "docs/contrato.pdf",
		Active:       true,
	},
	{
		Category:     "TARIFAS",
		Pattern:      "%MAYOR VALOR COBRADO EN%ALBERGUE ACOMPANANTE%",
		ResponseText: "El cobro del albergue para acompañante está justificado según tarifa contractual autorizada. Se cuenta con la debida autorización y documentación de soporte.",
		DocumentRef:  "docs/contrato.pdf",
		Active:       true,
	},
	{
		Category:     "TARIFAS",
		Pattern:      "%MAYOR VALOR COBRADO%",
		ResponseText: "El valor facturado corresponde a las tarifas autorizadas y vigentes según contrato. Se adjunta documentación soporte.",
		DocumentRef:  "docs/contrato.pdf",
		Active:       true,
	},
	{
		Category:     "MEDICAMENTOS",
		Pattern:      "%MEDICAMENTO NO AUTORIZADO%",
		ResponseText: "El medicamento fue suministrado por prescripción médica urgente. Se adjunta orden médica y justificación clínica.",
		DocumentRef:  "docs/contrato.pdf",
		Active:       true,
	},
	{
		Category:     "PROCEDIMIENTOS",
		Pattern:      "%PROCEDIMIENTO NO AUTORIZADO%",
		ResponseText: "El procedimiento fue realizado por necesidad médica urgente con autorización verbal posterior. Se adjunta documentación clínica.",
		DocumentRef:  "docs/contrato.pdf",
		Active:       true,
	},
}

func seedDefaultRules(ctx context.Context, q dbtx) (int, error) {
	query := `
		INSERT OR IGNORE INTO response_rules (category, pattern, response_text, document_ref, active)
		VALUES (?, ?, ?, ?, ?)
	`

	inserted := 0
	for _, rule := range defaultRules {
		result, err := q.ExecContext(ctx, query,
			rule.Category, rule.Pattern, rule.ResponseText,
			nullIfEmpty(rule.DocumentRef), rule.Active,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed rule (%s, %s): %w", rule.Category, rule.Pattern, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	if inserted > 0 {
		slog.Info("seeded default response rules", "inserted", inserted)
	}
	return inserted, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*model.Rule, error) {
	var rule model.Rule
	var documentRef sql.NullString
	if err := row.Scan(
		&rule.ID, &rule.Category, &rule.Pattern, &rule.ResponseText,
		&documentRef, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.DocumentRef = documentRef.String
	return &rule, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isForeignKeyViolation reports whether err is a SQLite FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
