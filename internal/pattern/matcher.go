package pattern

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"
)

// Matcher evaluates dispute justifications against a fixed snapshot of
// response rules. A Matcher is immutable after construction, so one instance
// may be shared by concurrent workers; rule set changes require building a
// new Matcher from a fresh snapshot.
type Matcher struct {
	compiled   map[int64]*regexp.Regexp
	byCategory map[string][]model.Rule
}

// NewMatcher compiles the given rules into a matcher. Rules whose pattern
// fails to translate are rejected outright: the rule store validates patterns
// on write, so a broken pattern here means corrupted configuration.
func NewMatcher(rules []model.Rule) (*Matcher, error) {
	m := &Matcher{
		compiled:   make(map[int64]*regexp.Regexp, len(rules)),
		byCategory: make(map[string][]model.Rule),
	}

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		re, err := TranslateLike(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d has an invalid pattern %q: %w", rule.ID, rule.Pattern, err)
		}
		m.compiled[rule.ID] = re
		m.byCategory[rule.Category] = append(m.byCategory[rule.Category], rule)
	}

	return m, nil
}

// RuleCount returns the number of active rules in the snapshot.
func (m *Matcher) RuleCount() int {
	return len(m.compiled)
}

// Match returns the best applicable rule for the given category and
// justification text, or nil when no rule matches.
//
// Ties between multiple matching rules are resolved by specificity: the rule
// whose pattern has the most literal runes once wildcard markers are stripped
// wins, so a generic fallback like `%MAYOR VALOR COBRADO%` loses to a more
// specific variant. A residual tie is reported as common.ErrAmbiguousMatch
// rather than silently resolved by row order.
func (m *Matcher) Match(category, justification string) (*model.Rule, error) {
	var matches []model.Rule
	for _, rule := range m.byCategory[category] {
		if m.compiled[rule.ID].MatchString(justification) {
			matches = append(matches, rule)
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) == 1 {
		return &matches[0], nil
	}

	// Most specific first; ID as a stable secondary order for reporting only.
	sort.Slice(matches, func(i, j int) bool {
		li, lj := matches[i].LiteralLength(), matches[j].LiteralLength()
		if li != lj {
			return li > lj
		}
		return matches[i].ID < matches[j].ID
	})

	if matches[0].LiteralLength() == matches[1].LiteralLength() {
		var tied []int64
		top := matches[0].LiteralLength()
		for _, r := range matches {
			if r.LiteralLength() == top {
				tied = append(tied, r.ID)
			}
		}
		return nil, fmt.Errorf("%w: rules %v match with equal specificity", common.ErrAmbiguousMatch, tied)
	}

	return &matches[0], nil
}
