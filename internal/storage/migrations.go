package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS response_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category TEXT NOT NULL,
					pattern TEXT NOT NULL,
					response_text TEXT NOT NULL,
					document_ref TEXT,
					active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(category, pattern)
				)`,
				`CREATE INDEX idx_response_rules_category ON response_rules(category)`,
				`CREATE INDEX idx_response_rules_active ON response_rules(active)`,

				`CREATE TABLE IF NOT EXISTS dispute_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id TEXT NOT NULL,
					dispute_id TEXT NOT NULL,
					item_id TEXT,
					item_description TEXT,
					category TEXT,
					short_description TEXT,
					justification TEXT,
					disputed_cents INTEGER NOT NULL DEFAULT 0,
					original_status TEXT,
					applied_response TEXT,
					matched_rule_id INTEGER,
					processing_state TEXT NOT NULL DEFAULT 'PENDING',
					processed_at DATETIME,
					error_message TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (matched_rule_id) REFERENCES response_rules(id),
					UNIQUE(account_id, dispute_id)
				)`,
				`CREATE INDEX idx_dispute_items_state ON dispute_items(processing_state)`,
				`CREATE INDEX idx_dispute_items_account ON dispute_items(account_id)`,
				`CREATE INDEX idx_dispute_items_category_state ON dispute_items(category, processing_state)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id TEXT NOT NULL,
					dispute_id TEXT NOT NULL,
					action TEXT NOT NULL,
					detail TEXT,
					occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_audit_log_key ON audit_log(account_id, dispute_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Maintain updated_at on rule changes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TRIGGER update_response_rules_updated_at
				AFTER UPDATE ON response_rules
				FOR EACH ROW
				BEGIN
					UPDATE response_rules SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
				END
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Add active-rules view and audit time index",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE VIEW IF NOT EXISTS active_rules AS
					SELECT id, category, pattern, response_text, document_ref, created_at, updated_at
					FROM response_rules
					WHERE active = 1
					ORDER BY category, pattern`,
				`CREATE INDEX IF NOT EXISTS idx_audit_log_occurred ON audit_log(occurred_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
