// Package query turns free-text search input into a term that is safe to
// embed inside a quoted provider query literal.
package query

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// MinLength is the shortest trimmed input that triggers a search.
	MinLength = 2
	// MaxLength is the longest trimmed input accepted.
	MaxLength = 100
)

// ErrQueryTooLong is returned when the trimmed input exceeds MaxLength.
var ErrQueryTooLong = errors.New("query too long")

// Query is a sanitized search term. The zero value is the empty query.
type Query struct {
	Term string
}

// Empty reports whether the caller should skip the upstream search.
func (q Query) Empty() bool { return q.Term == "" }

// Sanitize trims raw, enforces the length limits and keeps only
// [A-Za-z0-9 \-_.]. The result can never contain a quote or backslash.
func Sanitize(raw string) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(trimmed)
	if n < MinLength {
		return Query{}, nil
	}
	if n > MaxLength {
		return Query{}, ErrQueryTooLong
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return Query{Term: b.String()}, nil
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '_', r == '.':
		return true
	}
	return false
}
