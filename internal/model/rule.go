// Package model defines the core data structures for the glosas engine.
package model

import (
	"time"
)

// Rule is a configured auto-response template. When a dispute item's
// justification text matches Pattern within Category, ResponseText is the
// canned reply to submit and DocumentRef points at the supporting evidence.
type Rule struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Category     string    `json:"category"`
	Pattern      string    `json:"pattern"`
	ResponseText string    `json:"response_text"`
	DocumentRef  string    `json:"document_ref,omitempty"`
	ID           int64     `json:"id"`
	Active       bool      `json:"active"`
}

// LiteralLength returns the number of runes in the pattern once wildcard
// markers are stripped. Used to rank competing matches: more literal text
// means a more specific rule.
func (r *Rule) LiteralLength() int {
	n := 0
	for _, ch := range r.Pattern {
		if ch != '%' && ch != '_' {
			n++
		}
	}
	return n
}
