package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/bootgestor/glosas/internal/engine"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <account-id> <dispute-id>",
		Short: "Reset a finalized dispute back to PENDING",
		Long: `Return a PROCESSED or ERROR dispute to PENDING so the next processing
pass picks it up again.

The intervention is recorded in the audit log; nothing is ever removed
from the record's history.`,
		Args: cobra.ExactArgs(2),
		RunE: runReset,
	}

	cmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")

	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accountID, disputeID := args[0], args[1]

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	item, err := store.GetDispute(ctx, accountID, disputeID)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Printf("Dispute %s is %s.\n", item.Key(), item.State)
		fmt.Print("Reset it to PENDING? [y/N]: ")

		response, readErr := bufio.NewReader(os.Stdin).ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}
		if answer := strings.ToLower(strings.TrimSpace(response)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	eng := engine.New(store)
	if err := eng.Reset(ctx, accountID, disputeID); err != nil {
		return err
	}

	fmt.Printf("Dispute %s reset to PENDING\n", item.Key())
	return nil
}
