// Package textmatch implements the case-insensitive substring matching and
// snippet extraction shared by the search engines.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"
)

// Ellipsis marks a truncated snippet edge.
const Ellipsis = "..."

// DefaultWindow is the number of characters kept on each side of a match.
const DefaultWindow = 25

var phrasePattern = regexp.MustCompile(`"([^"]+)"`)

// Query is a parsed search query.
type Query struct {
	// Term is matched as one case-insensitive substring.
	Term string
	// Phrase is true when Term came from a quoted "exact phrase".
	Phrase bool
}

// ParseQuery extracts the first quoted phrase from raw. Without one, the
// whole trimmed query is the term.
func ParseQuery(raw string) Query {
	raw = strings.TrimSpace(raw)
	if m := phrasePattern.FindStringSubmatch(raw); m != nil {
		if p := strings.TrimSpace(m[1]); p != "" {
			return Query{Term: p, Phrase: true}
		}
	}
	return Query{Term: raw}
}

// Empty reports whether there is nothing to search for.
func (q Query) Empty() bool {
	return strings.TrimSpace(q.Term) == ""
}

// Tokens splits the term on whitespace.
func (q Query) Tokens() []string {
	return strings.Fields(q.Term)
}

func fold(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

// Index returns the rune offsets [start, end) of the first case-insensitive
// occurrence of term in text, or -1, -1.
func Index(text, term string) (int, int) {
	if term == "" {
		return -1, -1
	}
	return indexRunes(fold(text), fold(term))
}

func indexRunes(hay, needle []rune) (int, int) {
	n := len(needle)
	for i := 0; i+n <= len(hay); i++ {
		match := true
		for j := 0; j < n; j++ {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i, i + n
		}
	}
	return -1, -1
}

// Contains reports whether text contains term, ignoring case.
func Contains(text, term string) bool {
	start, _ := Index(text, term)
	return start >= 0
}

// Snippet cuts text to [start-window, end+window) in runes and marks
// truncated edges with an ellipsis.
func Snippet(text string, start, end, window int) string {
	r := []rune(text)
	if start < 0 || end > len(r) || start > end {
		return ""
	}
	from := max(start-window, 0)
	to := min(end+window, len(r))

	var sb strings.Builder
	if from > 0 {
		sb.WriteString(Ellipsis)
	}
	sb.WriteString(string(r[from:to]))
	if to < len(r) {
		sb.WriteString(Ellipsis)
	}
	return sb.String()
}

// Excerpt finds term in text and returns the surrounding snippet.
func Excerpt(text, term string, window int) (string, bool) {
	start, end := Index(text, term)
	if start < 0 {
		return "", false
	}
	return Snippet(text, start, end, window), true
}

// Head returns the first n runes of text, with an ellipsis if cut.
func Head(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + Ellipsis
}
