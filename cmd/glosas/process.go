package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bootgestor/glosas/internal/engine"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process all pending disputes",
		Long: `Run one processing pass over the ledger.

Every PENDING record is matched against the active rules; the most
specific matching rule's response is applied and the record moves to
PROCESSED. Records with no matching rule, or with an ambiguous match,
move to ERROR for human review. Terminal records are never revisited.`,
		RunE: runProcess,
	}

	cmd.Flags().String("category", "", "only process disputes in this category")
	cmd.Flags().Int("workers", 0, "number of concurrent workers (default 4)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	category, _ := cmd.Flags().GetString("category")
	workers, _ := cmd.Flags().GetInt("workers")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var bar *progressbar.ProgressBar
	config := engine.Config{Workers: workers}
	if !noProgress {
		config.OnProgress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Processing disputes..."),
				)
			}
			_ = bar.Set(done)
		}
	}

	eng := engine.NewWithConfig(store, config)
	summary, err := eng.ProcessPending(ctx, category)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("processing pass %s halted: %w", summary.RunID, err)
	}

	fmt.Printf("Pass %s finished in %s: %d processed, %d errored, %d skipped\n",
		summary.RunID, summary.Duration.Round(time.Millisecond), summary.Processed, summary.Errored, summary.Skipped)
	return nil
}
