// Package pricing reconciles live marketplace listings and historical
// catalogue prices into the valuation summary.
package pricing

import (
	"context"
	"errors"
	"strconv"

	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/fx"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/marketplace"
)

// ErrNoValidPrices means no marketplace listing carried a usable price.
// Live market data is the backbone of a valuation, so this is fatal;
// an empty catalogue is not.
var ErrNoValidPrices = errors.New("no valid marketplace prices")

// Sales-volume trend labels, keyed off listing count.
const (
	TrendHigh     = "High Activity"
	TrendModerate = "Moderate Activity"
	TrendLow      = "Low Activity"
	TrendLimited  = "Limited Activity"
	TrendStable   = "Stable"
)

// Summary is the aggregate view of the live market prices.
type Summary struct {
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Average  float64   `json:"average"`
	Count    int       `json:"count"`
	Currency string    `json:"currency"`
	Trend    string    `json:"trend"`
	Prices   []float64 `json:"prices"`
}

// Result joins the live market summary with the catalogue view.
type Result struct {
	Market           Summary `json:"market"`
	CatalogueAverage float64 `json:"catalogue_average"`
	CatalogueCount   int     `json:"catalogue_count"`
}

// Reconciler converts and aggregates prices into the reporting currency.
type Reconciler struct {
	converter *fx.Converter
}

// NewReconciler builds a reconciler over the given currency converter.
func NewReconciler(converter *fx.Converter) *Reconciler {
	return &Reconciler{converter: converter}
}

// Reconcile filters unpriced listings, converts everything into the
// reporting currency and aggregates. Listing order is preserved in
// Prices, and the trend reflects raw listing volume, priced or not.
// Returns ErrNoValidPrices when no listing survives; an empty
// catalogue price set just yields a zero catalogue average.
func (r *Reconciler) Reconcile(ctx context.Context, listings []marketplace.Listing, cataloguePrices []float64) (Result, error) {
	timer := logging.StartTimer(logging.CategoryPricing, "Reconcile")
	defer timer.Stop()

	sess := r.converter.Session()
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price.Value <= 0 {
			logging.PricingDebug("dropping unpriced listing %q", l.Title)
			continue
		}
		prices = append(prices, sess.Convert(ctx, l.Price.Value, l.Price.Currency))
	}
	if len(prices) == 0 {
		return Result{}, ErrNoValidPrices
	}

	res := Result{
		Market: Summary{
			Min:      prices[0],
			Max:      prices[0],
			Count:    len(prices),
			Currency: r.converter.Target(),
			Trend:    Trend(len(listings)),
			Prices:   prices,
		},
		CatalogueAverage: mean(cataloguePrices),
		CatalogueCount:   len(cataloguePrices),
	}

	var sum float64
	for _, p := range prices {
		sum += p
		if p < res.Market.Min {
			res.Market.Min = p
		}
		if p > res.Market.Max {
			res.Market.Max = p
		}
	}
	res.Market.Average = sum / float64(len(prices))

	logging.Pricing("reconciled %d listings: min %.2f max %.2f avg %.2f %s, catalogue avg %.2f over %d",
		res.Market.Count, res.Market.Min, res.Market.Max, res.Market.Average,
		res.Market.Currency, res.CatalogueAverage, res.CatalogueCount)
	return res, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Trend maps recent sold-listing volume to an activity label.
func Trend(count int) string {
	switch {
	case count == 0:
		return TrendStable
	case count > 20:
		return TrendHigh
	case count > 10:
		return TrendModerate
	case count > 5:
		return TrendLow
	default:
		return TrendLimited
	}
}

// BackfillYear fills a missing publication year from the best catalogue
// match. The extractor often cannot read the year off a cover; the top
// index record usually knows it.
func BackfillYear(id identity.ComicIdentity, records []catalogue.Record) identity.ComicIdentity {
	if id.HasYear() {
		return id
	}
	for _, rec := range records {
		if rec.Source == "wiki" {
			continue
		}
		if rec.Year > 0 {
			id.Year = strconv.Itoa(rec.Year)
			logging.Pricing("backfilled year %s from catalogue record %q", id.Year, rec.FullTitle)
			break
		}
	}
	return id
}
