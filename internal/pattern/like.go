// Package pattern implements wildcard matching of dispute justifications
// against configured response rules.
package pattern

import (
	"regexp"
	"strings"
)

// TranslateLike converts a SQL-style LIKE pattern into an anchored regular
// expression. `%` matches any sequence of runes (including none), `_` matches
// exactly one rune, and every other rune is literal. Matching is
// case-sensitive. The translation exists so the matching semantics are
// testable independently of any storage engine's LIKE operator.
func TranslateLike(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	// (?s) so `%` spans line breaks inside justification text.
	sb.WriteString(`(?s)^`)

	for _, ch := range pattern {
		switch ch {
		case '%':
			sb.WriteString(`.*`)
		case '_':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}

	sb.WriteString(`$`)
	return regexp.Compile(sb.String())
}
