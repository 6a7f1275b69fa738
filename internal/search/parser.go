// Package search splits free-text search input into match terms.
package search

import (
	"strings"
	"unicode"
)

// Query is a tokenized free-text query. Every term must match for a row to
// be included.
type Query struct {
	Terms []string // Lowercased words and quoted phrases, quotes removed
}

// IsEmpty returns true if the query has no terms.
func (q *Query) IsEmpty() bool {
	return len(q.Terms) == 0
}

// String renders the query back into input form, quoting multi-word phrases.
func (q *Query) String() string {
	parts := make([]string, len(q.Terms))
	for i, term := range q.Terms {
		if strings.ContainsFunc(term, unicode.IsSpace) {
			parts[i] = `"` + term + `"`
		} else {
			parts[i] = term
		}
	}
	return strings.Join(parts, " ")
}

// Parse tokenizes queryStr. Bare words become individual terms, "quoted
// phrases" stay together as a single term. Matching is case-insensitive so
// all terms are lowercased.
func Parse(queryStr string) *Query {
	q := &Query{}
	seen := make(map[string]bool)
	for _, token := range tokenize(queryStr) {
		term := strings.ToLower(strings.TrimSpace(unquote(token)))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		q.Terms = append(q.Terms, term)
	}
	return q
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// tokenize splits a query string on whitespace, preserving quoted phrases.
// Both double and single quotes open a phrase; an unterminated quote runs to
// the end of the input.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	flush := func(quoted bool) {
		if current.Len() == 0 {
			return
		}
		if quoted {
			tokens = append(tokens, "\""+current.String()+"\"")
		} else {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, char := range queryStr {
		switch {
		case (char == '"' || char == '\'') && !inQuotes:
			// A quote inside a word (don't) is part of the word.
			if char == '\'' && current.Len() > 0 {
				current.WriteRune(char)
				continue
			}
			flush(false)
			inQuotes = true
			quoteChar = char
		case inQuotes && char == quoteChar:
			flush(true)
			inQuotes = false
			quoteChar = 0
		case !inQuotes && unicode.IsSpace(char):
			flush(false)
		default:
			current.WriteRune(char)
		}
	}
	flush(inQuotes)

	return tokens
}

// Match reports whether every term of q occurs in at least one of fields.
// An empty query matches everything.
func (q *Query) Match(fields ...string) bool {
	for _, term := range q.Terms {
		found := false
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
