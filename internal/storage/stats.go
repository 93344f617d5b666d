package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bootgestor/glosas/internal/service"
)

// sqliteTimeLayouts are the timestamp formats the driver may emit for TEXT
// values, most precise first.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// StatsByAccount computes the per-account rollup over the processing ledger.
// It is a pure read: one aggregate query, no state change. The disputed total
// sums every item regardless of state.
func (s *SQLiteStorage) StatsByAccount(ctx context.Context) ([]service.AccountStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return statsByAccount(ctx, s.db)
}

func (t *sqliteTransaction) StatsByAccount(ctx context.Context) ([]service.AccountStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return statsByAccount(ctx, t.tx)
}

func statsByAccount(ctx context.Context, q dbtx) ([]service.AccountStats, error) {
	query := `
		SELECT account_id,
			COUNT(*) AS total,
			SUM(CASE WHEN processing_state = 'PROCESSED' THEN 1 ELSE 0 END) AS processed,
			SUM(CASE WHEN processing_state = 'ERROR' THEN 1 ELSE 0 END) AS errored,
			SUM(CASE WHEN processing_state = 'PENDING' THEN 1 ELSE 0 END) AS pending,
			SUM(disputed_cents) AS total_disputed,
			MAX(processed_at) AS last_processed_at
		FROM dispute_items
		GROUP BY account_id
		ORDER BY account_id ASC
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute account statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []service.AccountStats
	for rows.Next() {
		var st service.AccountStats
		var lastProcessed sql.NullString
		if err := rows.Scan(
			&st.AccountID, &st.Total, &st.Processed, &st.Errored, &st.Pending,
			&st.TotalDisputedCents, &lastProcessed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account statistics: %w", err)
		}
		if lastProcessed.Valid {
			// MAX() strips the column's declared type, so the driver hands the
			// timestamp back as text instead of time.Time.
			t, parseErr := parseSQLiteTime(lastProcessed.String)
			if parseErr != nil {
				return nil, fmt.Errorf("failed to parse last processed time: %w", parseErr)
			}
			st.LastProcessedAt = &t
		}
		stats = append(stats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account statistics: %w", err)
	}

	return stats, nil
}
