package main

import (
	"fmt"
	"log/slog"

	"github.com/bootgestor/glosas/internal/config"
	"github.com/bootgestor/glosas/internal/storage"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures the local database has all the required tables,
indexes, and triggers for the engine to function properly.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("seed", false, "Seed the stock response rules after migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	seed, _ := cmd.Flags().GetBool("seed")
	dbPath := config.DatabasePath()

	slog.Info("Starting database migration", "database", dbPath, "seed", seed)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if seed {
		inserted, seedErr := store.SeedDefaultRules(ctx)
		if seedErr != nil {
			return fmt.Errorf("failed to seed default rules: %w", seedErr)
		}
		slog.Info("Seeded default response rules", "inserted", inserted)
	}

	slog.Info("Database migrations completed successfully", "database", dbPath)

	return nil
}
