// Package storage provides the SQLite persistence layer for the glosas engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bootgestor/glosas/internal/model"
	"github.com/bootgestor/glosas/internal/pattern"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidRule    = errors.New("invalid rule")
	ErrInvalidDispute = errors.New("invalid dispute item")
	ErrInvalidAudit   = errors.New("invalid audit entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRule validates a response rule before it is written.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.ResponseText) == "" {
		return fmt.Errorf("%w: missing response text", ErrInvalidRule)
	}
	if rule.LiteralLength() == 0 {
		return fmt.Errorf("%w: pattern %q has no literal text", ErrInvalidRule, rule.Pattern)
	}
	if _, err := pattern.TranslateLike(rule.Pattern); err != nil {
		return fmt.Errorf("%w: pattern %q does not translate: %v", ErrInvalidRule, rule.Pattern, err)
	}
	return nil
}

// validateDispute validates a dispute item before ingestion.
func validateDispute(item *model.DisputeItem) error {
	if item == nil {
		return fmt.Errorf("%w: dispute item", ErrNilParameter)
	}
	if item.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidDispute)
	}
	if item.DisputeID == "" {
		return fmt.Errorf("%w: missing dispute ID", ErrInvalidDispute)
	}
	if item.DisputedCents < 0 {
		return fmt.Errorf("%w: negative disputed amount", ErrInvalidDispute)
	}
	return nil
}

// validateAudit validates an audit entry before it is appended.
func validateAudit(entry *model.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: audit entry", ErrNilParameter)
	}
	if entry.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidAudit)
	}
	if entry.DisputeID == "" {
		return fmt.Errorf("%w: missing dispute ID", ErrInvalidAudit)
	}
	if entry.Action == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidAudit)
	}
	return nil
}
