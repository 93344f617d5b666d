package model

import (
	"fmt"
	"time"
)

// ProcessingState tracks a dispute item through its lifecycle.
type ProcessingState string

// Lifecycle states. PENDING is the only non-terminal state; a record
// transitions exactly once to PROCESSED or ERROR.
const (
	StatePending   ProcessingState = "PENDING"
	StateProcessed ProcessingState = "PROCESSED"
	StateError     ProcessingState = "ERROR"
)

// IsTerminal reports whether no further automatic transition may occur.
func (s ProcessingState) IsTerminal() bool {
	return s == StateProcessed || s == StateError
}

// Valid reports whether s is a known processing state.
func (s ProcessingState) Valid() bool {
	switch s {
	case StatePending, StateProcessed, StateError:
		return true
	}
	return false
}

// DisputeItem is one disputed invoice line item (a "glosa") as supplied by
// the host process, plus the engine's processing outcome. The natural key is
// (AccountID, DisputeID); re-ingesting the same pair never creates a second
// row.
type DisputeItem struct {
	CreatedAt        time.Time       `json:"created_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	MatchedRuleID    *int64          `json:"matched_rule_id,omitempty"`
	AccountID        string          `json:"account_id"`
	DisputeID        string          `json:"dispute_id"`
	ItemID           string          `json:"item_id,omitempty"`
	ItemDescription  string          `json:"item_description,omitempty"`
	Category         string          `json:"category"`
	ShortDescription string          `json:"short_description,omitempty"`
	Justification    string          `json:"justification"`
	OriginalStatus   string          `json:"original_status,omitempty"`
	AppliedResponse  string          `json:"applied_response,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	State            ProcessingState `json:"processing_state"`
	DisputedCents    int64           `json:"disputed_cents"`
	ID               int64           `json:"id"`
}

// Key returns the natural key used for idempotent ingestion and audit
// correlation.
func (d *DisputeItem) Key() string {
	return fmt.Sprintf("%s/%s", d.AccountID, d.DisputeID)
}
