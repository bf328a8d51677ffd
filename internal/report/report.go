// Package report turns a reconciled valuation into dealer-style prose.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/pricing"
	"github.com/defibabylon/collectorsage/internal/vision"
)

// Completer is the text-generation surface the writer needs. The
// vision package's Anthropic client satisfies it.
type Completer interface {
	Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error)
}

var _ Completer = (*vision.AnthropicClient)(nil)

// Writer generates the narrative section of a valuation.
type Writer struct {
	completer Completer
	model     string
	maxTokens int
}

// NewWriter builds a narrative writer over the given completer.
func NewWriter(completer Completer, model string, maxTokens int) *Writer {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Writer{completer: completer, model: model, maxTokens: maxTokens}
}

// Generate writes the dealer report for a reconciled valuation. The
// caller treats failure as non-fatal; the numeric result stands on its
// own.
func (w *Writer) Generate(ctx context.Context, id identity.ComicIdentity, res pricing.Result, records []catalogue.Record) (string, error) {
	timer := logging.StartTimer(logging.CategoryReport, "Generate")
	defer timer.Stop()

	prompt := BuildPrompt(id, res, records)
	text, err := w.completer.Complete(ctx, w.model, w.maxTokens, prompt)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	logging.Report("generated narrative for %q #%s (%d chars)", id.Title, id.IssueNumber, len(text))
	return text, nil
}

// BuildPrompt assembles the dealer-analysis prompt from the structured
// stats. The publisher and catalogue price range come from the index
// records when present; placeholders otherwise.
func BuildPrompt(id identity.ComicIdentity, res pricing.Result, records []catalogue.Record) string {
	publisher := "Unknown (not found in catalogue)"
	dbMin, dbMax := "Unknown", "Unknown"

	var dbPrices []float64
	for _, rec := range records {
		if rec.Source == "wiki" {
			continue
		}
		if publisher == "Unknown (not found in catalogue)" && rec.Publisher != "" {
			publisher = rec.Publisher
		}
		if rec.HasPrice() {
			dbPrices = append(dbPrices, rec.Price)
		}
	}
	if len(dbPrices) > 0 {
		lo, hi := dbPrices[0], dbPrices[0]
		for _, p := range dbPrices {
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
		dbMin = fmt.Sprintf("%.2f", lo)
		dbMax = fmt.Sprintf("%.2f", hi)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an expert comic book dealer. Analyze the following information about %q issue #%s (%s) and write a detailed price report:\n\n",
		id.Title, id.IssueNumber, id.Year)
	fmt.Fprintf(&sb, "Total Marketplace Listings: %d\n", res.Market.Count)
	fmt.Fprintf(&sb, "Average Marketplace Price: %s %.2f\n", res.Market.Currency, res.Market.Average)
	fmt.Fprintf(&sb, "Marketplace Price Range: %.2f - %.2f\n", res.Market.Min, res.Market.Max)
	fmt.Fprintf(&sb, "Catalogue Price Range: %s - %s\n", dbMin, dbMax)
	fmt.Fprintf(&sb, "Catalogue Average Price: %.2f\n", res.CatalogueAverage)
	fmt.Fprintf(&sb, "Publisher: %s\n", publisher)
	fmt.Fprintf(&sb, "Recent Sales Trend: %s\n\n", res.Market.Trend)
	sb.WriteString("Please provide a comprehensive report including:\n" +
		"1. Overview of the comic's significance and collectible status\n" +
		"2. Analysis of the current market prices, comparing marketplace and catalogue prices\n" +
		"3. Factors influencing the comic's value\n" +
		"4. Advice for potential buyers or sellers\n" +
		"5. A brief outline of the story (2-3 sentences)\n" +
		"6. Any other relevant insights\n\n" +
		"Use the following format for your report:\n" +
		"[Comic book name, volume]\n" +
		"Key Features: [Notable aspects]\n" +
		"Impact: [1-5 stars]\n" +
		"Rarity: [1-5 stars]\n" +
		"Value: [1-5 stars]\n" +
		"Story: [1-5 stars]\n" +
		"Artwork: [1-5 stars]\n" +
		"Story Outline: [2-3 sentence summary of the comic's story]\n" +
		"[Your detailed analysis and insights]\n")
	return sb.String()
}
