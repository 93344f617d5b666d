package model

import (
	"time"
)

// AuditAction enumerates the actions recorded against a dispute item.
type AuditAction string

// Audit actions. The log is append-only; entries are never updated or
// deleted by the engine.
const (
	ActionIngested         AuditAction = "ingested"
	ActionRuleLookup       AuditAction = "rule_lookup"
	ActionResponseApplied  AuditAction = "response_applied"
	ActionProcessingFailed AuditAction = "processing_failed"
	ActionReset            AuditAction = "reset"
)

// AuditEntry is one immutable log line correlated to a dispute item by
// (AccountID, DisputeID).
type AuditEntry struct {
	OccurredAt time.Time   `json:"occurred_at"`
	AccountID  string      `json:"account_id"`
	DisputeID  string      `json:"dispute_id"`
	Action     AuditAction `json:"action"`
	Detail     string      `json:"detail,omitempty"`
	ID         int64       `json:"id"`
}
