package catalogue

import (
	"context"
	"fmt"
	"sort"

	"github.com/defibabylon/collectorsage/internal/embedding"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/match"
)

// Resolver turns an extracted identity into historical prices and the
// records that produced them. Resolution failures are absorbed: the
// catalogue is advisory, and a valuation proceeds without it.
type Resolver struct {
	index     Index
	engine    embedding.Engine
	weights   match.Weights
	pool      int // KNN candidates fetched before re-ranking
	keep      int // records surviving the re-rank
	wikiLimit int
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithPoolSize sets the KNN candidate pool fetched before re-ranking.
func WithPoolSize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.pool = n
		}
	}
}

// WithKeep sets how many records survive the re-rank.
func WithKeep(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.keep = n
		}
	}
}

// WithWikiLimit caps how many wiki enrichment entries get appended.
func WithWikiLimit(n int) ResolverOption {
	return func(r *Resolver) {
		if n >= 0 {
			r.wikiLimit = n
		}
	}
}

// NewResolver builds a resolver over the given index and embedding engine.
func NewResolver(index Index, engine embedding.Engine, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		index:     index,
		engine:    engine,
		weights:   match.DefaultWeights(),
		pool:      20,
		keep:      5,
		wikiLimit: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds the best catalogue matches for the identity. It returns
// the historical prices of the surviving records and the records
// themselves, wiki enrichment appended. It never fails: any error along
// the way yields empty results, logged but not surfaced, so the caller
// can price from live market data alone.
func (r *Resolver) Resolve(ctx context.Context, id identity.ComicIdentity) (prices []float64, records []Record) {
	timer := logging.StartTimer(logging.CategoryCatalogue, "Resolve")
	defer timer.Stop()

	if id.IsUnknown() {
		logging.Catalogue("skipping resolution for unknown title")
		return nil, nil
	}

	ranked, err := r.rank(ctx, id)
	if err != nil {
		logging.Get(logging.CategoryCatalogue).Warn("resolution failed for %q: %v", id.Title, err)
		return nil, nil
	}

	for _, rec := range ranked {
		if rec.HasPrice() {
			prices = append(prices, rec.Price)
		}
	}

	records = append(records, ranked...)
	records = append(records, r.enrich(ctx, id.Title)...)

	logging.Catalogue("resolved %q #%s: %d records, %d priced",
		id.Title, id.IssueNumber, len(records), len(prices))
	return prices, records
}

// rank embeds the title, pulls the KNN pool and re-ranks it with the
// blended fuzzy score plus the issue-number bonus.
func (r *Resolver) rank(ctx context.Context, id identity.ComicIdentity) ([]Record, error) {
	vector, err := r.engine.Embed(ctx, id.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query title: %w", err)
	}

	candidates, err := r.index.Query(ctx, vector, r.pool)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	type scored struct {
		score float64
		rec   Record
	}
	rescored := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		stored := c.Record.Series
		if stored == "" {
			stored = c.Record.Title
		}
		s := match.Score(stored, id.Title, c.Record.IssueNumber, id.IssueNumber, r.weights)
		logging.CatalogueDebug("candidate %q #%s scored %.1f (knn %.3f)",
			stored, c.Record.IssueNumber, s, c.Similarity)
		rescored = append(rescored, scored{score: s, rec: c.Record})
	}

	// Stable so equal scores keep the index's nearest-first order.
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].score > rescored[j].score
	})

	keep := r.keep
	if keep > len(rescored) {
		keep = len(rescored)
	}
	records := make([]Record, 0, keep)
	for _, s := range rescored[:keep] {
		rec := s.rec
		rec.Source = "index"
		records = append(records, rec)
	}
	return records, nil
}

// enrich appends wiki context entries for the title. Purely additive:
// wiki records carry no price and never affect ranking.
func (r *Resolver) enrich(ctx context.Context, title string) []Record {
	if r.wikiLimit == 0 {
		return nil
	}
	entries, err := r.index.WikiLookup(ctx, title, r.wikiLimit)
	if err != nil {
		logging.CatalogueDebug("wiki lookup failed for %q: %v", title, err)
		return nil
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, Record{
			Title:     e.Title,
			Publisher: e.Publisher,
			FullTitle: e.Summary,
			Source:    "wiki",
		})
	}
	return records
}

// Search is the raw semantic search behind the debugging API: embed the
// query and return the nearest records without fuzzy re-ranking.
func (r *Resolver) Search(ctx context.Context, query string, topK int) ([]Record, error) {
	if query == "" {
		return nil, fmt.Errorf("search query required")
	}
	if topK <= 0 {
		topK = 5
	}

	vector, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}
	candidates, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}

	records := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, c.Record)
	}
	return records, nil
}
