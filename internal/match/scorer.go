// Package match scores how well a catalogue record matches an extracted
// comic identity. Title similarity blends several fuzzy string measures
// with a phonetic signal; the issue number is compared separately and
// contributes a flat bonus rather than a blended weight, because an exact
// issue number is a stronger signal than any fuzzy title closeness.
package match

import (
	"strconv"
	"strings"

	"github.com/dotcypress/phonetics"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
)

// Weights control the title similarity blend. Five over-determined signals
// keep the score robust against OCR/LLM noise: misspellings, token
// reordering, abbreviation.
type Weights struct {
	Ratio      float64
	Partial    float64
	TokenSort  float64
	TokenSet   float64
	Phonetic   float64
	IssueBonus float64
}

// DefaultWeights is the production blend.
func DefaultWeights() Weights {
	return Weights{
		Ratio:      0.3,
		Partial:    0.2,
		TokenSort:  0.2,
		TokenSet:   0.2,
		Phonetic:   0.1,
		IssueBonus: 50,
	}
}

// MaxScore is the highest attainable composite score under w: a perfect
// title match across every signal plus the issue bonus.
func (w Weights) MaxScore() float64 {
	return 100*(w.Ratio+w.Partial+w.TokenSort+w.TokenSet+w.Phonetic) + w.IssueBonus
}

// TitleSimilarity computes the blended similarity of two titles in [0,100].
// Both titles are normalized first; malformed input degrades to 0 rather
// than failing the resolution.
func TitleSimilarity(stored, query string, w Weights) float64 {
	stored = identity.Normalize(stored)
	query = identity.Normalize(query)
	if stored == "" || query == "" {
		return 0
	}

	ratio := float64(fuzzy.Ratio(stored, query))
	partial := float64(fuzzy.PartialRatio(stored, query))
	tokenSort := float64(fuzzy.TokenSortRatio(stored, query))
	tokenSet := float64(fuzzy.TokenSetRatio(stored, query))

	phonetic := 0.0
	if phonetics.EncodeSoundex(stored) == phonetics.EncodeSoundex(query) {
		phonetic = 100
	}

	sim := ratio*w.Ratio + partial*w.Partial + tokenSort*w.TokenSort +
		tokenSet*w.TokenSet + phonetic*w.Phonetic

	logging.CatalogueDebug("title similarity %q vs %q: ratio=%.0f partial=%.0f sort=%.0f set=%.0f phonetic=%.0f -> %.2f",
		stored, query, ratio, partial, tokenSort, tokenSet, phonetic, sim)
	return sim
}

// IssueNumbersMatch compares issue numbers across the representations the
// catalogue and the extractor produce: "9", "9.0", 9 and 9.0 all match.
// Values that do not parse as numbers fall back to trimmed string equality
// ("Annual" == "Annual").
func IssueNumbersMatch(stored, query string) bool {
	s, sOK := parseIssue(stored)
	q, qOK := parseIssue(query)
	if sOK && qOK {
		diff := s - q
		if diff < 0 {
			diff = -diff
		}
		// Tolerates float rounding in stored values.
		return diff < 0.1
	}
	return strings.TrimSpace(stored) == strings.TrimSpace(query)
}

func parseIssue(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, ".0")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Score computes the composite score used to rank catalogue candidates:
// blended title similarity plus a flat bonus when the issue numbers match.
func Score(storedTitle, queryTitle, storedIssue, queryIssue string, w Weights) float64 {
	score := TitleSimilarity(storedTitle, queryTitle, w)
	if IssueNumbersMatch(storedIssue, queryIssue) {
		score += w.IssueBonus
	}
	return score
}
