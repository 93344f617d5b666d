package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bootgestor/glosas/internal/engine"
	"github.com/bootgestor/glosas/internal/model"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Ingest disputed items from a CSV export",
		Long: `Ingest a batch of disputed invoice items from a CSV file.

The file must carry a header row. Recognized columns: account_id,
dispute_id, item_id, item_description, category, short_description,
justification, disputed_amount, original_status. Amounts are decimal
currency values (e.g. 1255.50).

Ingestion is idempotent on (account_id, dispute_id): new pairs are
created PENDING, pairs still PENDING are refreshed, and pairs that
already reached a terminal state are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	items, err := readDisputesCSV(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No records found in file.")
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := engine.New(store)
	summary, err := eng.Ingest(ctx, items)
	if err != nil {
		return fmt.Errorf("ingestion failed after %d records: %w", summary.Total(), err)
	}

	fmt.Printf("Ingested %d records: %d created, %d refreshed, %d already finalized\n",
		summary.Total(), summary.Created, summary.Refreshed, summary.SkippedTerminal)
	return nil
}

func readDisputesCSV(path string) ([]model.DisputeItem, error) {
	f, err := os.Open(path) // #nosec G304 -- user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"account_id", "dispute_id", "category", "justification"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var items []model.DisputeItem
	line := 1
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		line++
		if readErr != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, readErr)
		}

		cents, amountErr := parseAmountCents(field(record, "disputed_amount"))
		if amountErr != nil {
			return nil, fmt.Errorf("line %d: %w", line, amountErr)
		}

		items = append(items, model.DisputeItem{
			AccountID:        field(record, "account_id"),
			DisputeID:        field(record, "dispute_id"),
			ItemID:           field(record, "item_id"),
			ItemDescription:  field(record, "item_description"),
			Category:         field(record, "category"),
			ShortDescription: field(record, "short_description"),
			Justification:    field(record, "justification"),
			DisputedCents:    cents,
			OriginalStatus:   field(record, "original_status"),
			State:            model.StatePending,
		})
	}

	slog.Info("parsed dispute file", "path", path, "records", len(items))
	return items, nil
}

// parseAmountCents converts a decimal currency string to integer cents.
// The empty string is treated as zero.
func parseAmountCents(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	centPart, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	cents := units*100 + centPart
	if negative {
		cents = -cents
	}
	return cents, nil
}
