// Package pipeline sequences a valuation request: extract the identity,
// fan out to the catalogue and the live marketplace, reconcile prices,
// then write the narrative.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/marketplace"
	"github.com/defibabylon/collectorsage/internal/pricing"
)

// State tracks a request through the pipeline.
type State string

const (
	StateStart       State = "START"
	StateExtracting  State = "EXTRACTING"
	StateExtracted   State = "EXTRACTED"
	StateFetching    State = "FETCHING"
	StateFetched     State = "FETCHED"
	StateReconciling State = "RECONCILING"
	StateReporting   State = "REPORTING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// ErrNoMarketplaceData means the live marketplace returned nothing
// usable. Fatal: without a live comparable there is no estimate.
var ErrNoMarketplaceData = errors.New("no marketplace data")

// Extractor is the vision boundary; the vision Strategy satisfies it.
type Extractor interface {
	Extract(ctx context.Context, imageJPEG []byte) (identity.ComicIdentity, error)
}

// Resolver is the catalogue boundary. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, id identity.ComicIdentity) (prices []float64, records []catalogue.Record)
}

// Marketplace is the live-listings boundary.
type Marketplace interface {
	SearchSold(ctx context.Context, id identity.ComicIdentity, limit int) ([]marketplace.Listing, error)
}

// Reconciler merges listing and catalogue prices.
type Reconciler interface {
	Reconcile(ctx context.Context, listings []marketplace.Listing, cataloguePrices []float64) (pricing.Result, error)
}

// Narrator writes the prose section. Failure is absorbed.
type Narrator interface {
	Generate(ctx context.Context, id identity.ComicIdentity, res pricing.Result, records []catalogue.Record) (string, error)
}

// Valuation is the final structured result of one request.
type Valuation struct {
	RequestID      string                 `json:"request_id"`
	Identity       identity.ComicIdentity `json:"identity"`
	Result         pricing.Result         `json:"result"`
	Records        []catalogue.Record     `json:"records,omitempty"`
	Listings       []marketplace.Listing  `json:"listings,omitempty"`
	Narrative      string                 `json:"narrative,omitempty"`
	NarrativeError string                 `json:"narrative_error,omitempty"`
	State          State                  `json:"state"`
	Elapsed        time.Duration          `json:"elapsed_ms"`
}

// Orchestrator wires the collaborators into the request state machine.
// It holds no per-request state, so one instance serves all requests.
type Orchestrator struct {
	extractor    Extractor
	resolver     Resolver
	market       Marketplace
	reconciler   Reconciler
	narrator     Narrator
	listingLimit int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithListingLimit caps how many sold listings each request fetches.
func WithListingLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.listingLimit = n
		}
	}
}

// New wires an orchestrator. All collaborators are required except the
// narrator, which may be nil when no report model is configured.
func New(extractor Extractor, resolver Resolver, market Marketplace, reconciler Reconciler, narrator Narrator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:    extractor,
		resolver:     resolver,
		market:       market,
		reconciler:   reconciler,
		narrator:     narrator,
		listingLimit: 50,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Appraise runs the full pipeline from a cover photograph.
func (o *Orchestrator) Appraise(ctx context.Context, imageJPEG []byte) (*Valuation, error) {
	requestID := uuid.NewString()
	started := time.Now()
	logging.Pipeline("[%s] %s", requestID, StateExtracting)

	id, err := o.extractor.Extract(ctx, imageJPEG)
	if err != nil {
		logging.Pipeline("[%s] %s: %v", requestID, StateFailed, err)
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	logging.Pipeline("[%s] %s: %q #%s", requestID, StateExtracted, id.Title, id.IssueNumber)

	return o.appraise(ctx, requestID, started, id)
}

// AppraiseIdentity runs the pipeline from a pre-extracted identity,
// for tests and the identity-only API path.
func (o *Orchestrator) AppraiseIdentity(ctx context.Context, id identity.ComicIdentity) (*Valuation, error) {
	return o.appraise(ctx, uuid.NewString(), time.Now(), identity.Clean(id))
}

func (o *Orchestrator) appraise(ctx context.Context, requestID string, started time.Time, id identity.ComicIdentity) (*Valuation, error) {
	logging.Pipeline("[%s] %s", requestID, StateFetching)

	var (
		cataloguePrices  []float64
		catalogueRecords []catalogue.Record
		listings         []marketplace.Listing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Absorbs its own failures; an empty catalogue is expected.
		cataloguePrices, catalogueRecords = o.resolver.Resolve(gctx, id)
		return nil
	})
	g.Go(func() error {
		found, err := o.market.SearchSold(gctx, id, o.listingLimit)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoMarketplaceData, err)
		}
		if len(found) == 0 {
			return fmt.Errorf("%w: search returned no listings", ErrNoMarketplaceData)
		}
		listings = found
		return nil
	})
	if err := g.Wait(); err != nil {
		logging.Pipeline("[%s] %s: %v", requestID, StateFailed, err)
		return nil, err
	}
	logging.Pipeline("[%s] %s: %d listings, %d catalogue records",
		requestID, StateFetched, len(listings), len(catalogueRecords))

	id = pricing.BackfillYear(id, catalogueRecords)

	logging.Pipeline("[%s] %s", requestID, StateReconciling)
	res, err := o.reconciler.Reconcile(ctx, listings, cataloguePrices)
	if err != nil {
		logging.Pipeline("[%s] %s: %v", requestID, StateFailed, err)
		return nil, err
	}

	v := &Valuation{
		RequestID: requestID,
		Identity:  id,
		Result:    res,
		Records:   catalogueRecords,
		Listings:  listings,
		State:     StateDone,
	}

	if o.narrator != nil {
		logging.Pipeline("[%s] %s", requestID, StateReporting)
		narrative, err := o.narrator.Generate(ctx, id, res, catalogueRecords)
		if err != nil {
			// Non-fatal: the numeric result stands on its own.
			logging.Get(logging.CategoryPipeline).Warn("[%s] narrative failed: %v", requestID, err)
			v.NarrativeError = err.Error()
		} else {
			v.Narrative = narrative
		}
	}

	v.Elapsed = time.Since(started)
	logging.Pipeline("[%s] %s in %s", requestID, StateDone, v.Elapsed)
	return v, nil
}
