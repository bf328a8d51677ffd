// Package catalogue resolves an extracted comic identity against the
// semantic index of historical sale records.
package catalogue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a single historical sale record stored in the semantic index.
// The index metadata is loosely typed (numbers and strings interchange
// freely across scrape generations), so all coercion happens here at the
// boundary and the rest of the core sees only this struct.
type Record struct {
	Title       string  `json:"title"`
	Series      string  `json:"series"`
	IssueNumber string  `json:"issue_number"`
	Price       float64 `json:"price"`
	Year        int     `json:"year"`
	Publisher   string  `json:"publisher"`
	Volume      int     `json:"volume"`
	Condition   string  `json:"condition"`
	URL         string  `json:"url"`
	FullTitle   string  `json:"full_title"`

	// Source distinguishes index records from wiki enrichment entries.
	// Not persisted; set by the resolver.
	Source string `json:"source,omitempty"`
}

// HasPrice reports whether the record carries a usable price.
func (r Record) HasPrice() bool {
	return r.Price > 0
}

// recordJSON is the loosely-typed wire form of a Record.
type recordJSON struct {
	Title       string          `json:"title"`
	Series      string          `json:"series"`
	IssueNumber json.RawMessage `json:"issue_number"`
	Price       json.RawMessage `json:"price"`
	Year        json.RawMessage `json:"year"`
	Publisher   string          `json:"publisher"`
	Volume      json.RawMessage `json:"volume"`
	Condition   string          `json:"condition"`
	URL         string          `json:"url"`
	FullTitle   string          `json:"full_title"`
}

// UnmarshalJSON tolerates numeric-vs-string representations for the issue
// number, price, year and volume fields. Malformed values default to their
// zero value instead of failing the whole record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("malformed catalogue record: %w", err)
	}

	r.Title = raw.Title
	r.Series = raw.Series
	r.Publisher = raw.Publisher
	r.Condition = raw.Condition
	r.URL = raw.URL
	r.FullTitle = raw.FullTitle
	r.IssueNumber = flexString(raw.IssueNumber)
	r.Price = flexFloat(raw.Price)
	r.Year = int(flexFloat(raw.Year))
	r.Volume = int(flexFloat(raw.Volume))
	return nil
}

// flexString renders a JSON string or number as a plain string. Numeric
// issue numbers come back as "9", not "9.0".
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(string(raw))
}

// flexFloat parses a JSON number or numeric string; anything else is 0.
func flexFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

// WikiEntry is auxiliary character/publisher context mined from a fan-wiki
// corpus. Enrichment only; never feeds price computation or ranking.
type WikiEntry struct {
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	Summary   string `json:"summary"`
}
