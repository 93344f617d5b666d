package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/service"

	"github.com/spf13/cobra"
)

func disputesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disputes",
		Short: "Inspect the processing ledger",
	}

	cmd.AddCommand(disputesListCmd())
	cmd.AddCommand(disputesShowCmd())
	cmd.AddCommand(disputesAuditCmd())

	return cmd
}

func disputesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dispute items",
		RunE:  runDisputesList,
	}

	cmd.Flags().String("state", "", "filter by processing state (PENDING, PROCESSED, ERROR)")
	cmd.Flags().String("category", "", "filter by dispute category")
	cmd.Flags().Int("limit", 0, "maximum number of records to show")

	return cmd
}

func runDisputesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	state, _ := cmd.Flags().GetString("state")
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	items, err := store.ListDisputes(ctx, service.DisputeFilter{
		State:    model.ProcessingState(state),
		Category: category,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list disputes: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("No disputes found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ACCOUNT\tDISPUTE\tCATEGORY\tAMOUNT\tSTATE\tRULE\n")
	for _, item := range items {
		rule := "-"
		if item.MatchedRuleID != nil {
			rule = fmt.Sprintf("%d", *item.MatchedRuleID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.AccountID, item.DisputeID, item.Category,
			formatCents(item.DisputedCents), item.State, rule)
	}
	return w.Flush()
}

func disputesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id> <dispute-id>",
		Short: "Show one dispute item in full",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			item, err := store.GetDispute(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Account:        %s\n", item.AccountID)
			fmt.Printf("Dispute:        %s\n", item.DisputeID)
			fmt.Printf("Item:           %s  %s\n", item.ItemID, item.ItemDescription)
			fmt.Printf("Category:       %s\n", item.Category)
			fmt.Printf("Justification:  %s\n", item.Justification)
			fmt.Printf("Amount:         %s\n", formatCents(item.DisputedCents))
			fmt.Printf("State:          %s\n", item.State)
			if item.MatchedRuleID != nil {
				fmt.Printf("Matched rule:   %d\n", *item.MatchedRuleID)
			}
			if item.AppliedResponse != "" {
				fmt.Printf("Response:       %s\n", item.AppliedResponse)
			}
			if item.ErrorMessage != "" {
				fmt.Printf("Error:          %s\n", item.ErrorMessage)
			}
			if item.ProcessedAt != nil {
				fmt.Printf("Processed at:   %s\n", item.ProcessedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func disputesAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <account-id> <dispute-id>",
		Short: "Show the audit trail for one dispute item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListAudit(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "OCCURRED\tACTION\tDETAIL\n")
			for _, e := range entries {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
					e.OccurredAt.Format(time.RFC3339), e.Action, e.Detail)
			}
			return w.Flush()
		},
	}
}
