// Package identity defines the comic identity extracted from a cover image
// and the title normalization applied before any comparison.
package identity

import (
	"regexp"
	"strings"
)

// Unset marks an identity field the extractor could not determine.
const Unset = "N/A"

// UnknownTitle is the sentinel the extractor returns when it cannot read a
// title at all. The orchestrator treats it as an extraction failure and
// falls back to the thorough strategy.
const UnknownTitle = "Unknown Title"

// ComicIdentity is the structured identity of a single comic book.
// Immutable once constructed for a given request.
type ComicIdentity struct {
	Title       string `json:"title"`
	IssueNumber string `json:"issue_number"`
	Volume      string `json:"volume"`
	Year        string `json:"year"` // 4-digit year or Unset
}

// stopWords are dropped from titles before comparison. Short connective
// words carry no signal and differ between catalogue and extractor
// renderings of the same series.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "by": {},
}

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9_\s]`)
	yearRe     = regexp.MustCompile(`\d{4}`)
)

// Normalize canonicalizes a free-text title for comparison: lowercase,
// stop words dropped token-wise, non-alphanumeric characters stripped.
// Idempotent. Both the stored and the query title MUST go through this
// function; one-sided normalization silently degrades match quality.
func Normalize(title string) string {
	title = strings.ToLower(title)
	words := strings.Fields(title)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	title = strings.Join(kept, " ")
	return nonAlnumRe.ReplaceAllString(title, "")
}

// Clean collapses extractor noise into the canonical identity: empty or
// "not specified" style values become Unset, the year is reduced to its
// first 4-digit run, and a missing title becomes the UnknownTitle sentinel.
func Clean(raw ComicIdentity) ComicIdentity {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = UnknownTitle
	}

	issue := strings.TrimSpace(raw.IssueNumber)
	if issue == "" || strings.Contains(strings.ToLower(issue), "not specified") || issue == Unset {
		issue = Unset
	}

	volume := strings.TrimSpace(raw.Volume)
	if volume == "" || strings.Contains(strings.ToLower(volume), "not specified") {
		volume = Unset
	}

	year := Unset
	if m := yearRe.FindString(raw.Year); m != "" {
		year = m
	}

	return ComicIdentity{
		Title:       title,
		IssueNumber: issue,
		Volume:      volume,
		Year:        year,
	}
}

// IsUnknown reports whether the extractor failed to read a usable title.
func (c ComicIdentity) IsUnknown() bool {
	return c.Title == "" || c.Title == UnknownTitle
}

// HasIssueNumber reports whether the issue number field is set.
func (c ComicIdentity) HasIssueNumber() bool {
	return c.IssueNumber != "" && c.IssueNumber != Unset
}

// HasYear reports whether the year field is set.
func (c ComicIdentity) HasYear() bool {
	return c.Year != "" && c.Year != Unset
}

// SearchQuery assembles the marketplace query string: title, then issue
// number and year when present.
func (c ComicIdentity) SearchQuery() string {
	terms := []string{c.Title}
	if c.HasIssueNumber() {
		terms = append(terms, c.IssueNumber)
	}
	if c.HasYear() {
		terms = append(terms, c.Year)
	}
	return strings.TrimSpace(strings.Join(terms, " "))
}
