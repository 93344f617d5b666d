package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-account processing statistics",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.StatsByAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}

	if len(stats) == 0 {
		fmt.Println("The ledger is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ACCOUNT\tTOTAL\tPROCESSED\tERRORED\tPENDING\tDISPUTED\tLAST PROCESSED\n")
	for _, st := range stats {
		last := "-"
		if st.LastProcessedAt != nil {
			last = st.LastProcessedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			st.AccountID, st.Total, st.Processed, st.Errored, st.Pending,
			formatCents(st.TotalDisputedCents), last)
	}
	return w.Flush()
}
