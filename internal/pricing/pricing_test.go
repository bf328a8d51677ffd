package pricing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/fx"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/marketplace"
)

type fixedRates map[string]float64

func (f fixedRates) Rate(ctx context.Context, from, to string) (float64, error) {
	if r, ok := f[from]; ok {
		return r, nil
	}
	return 0, errors.New("no rate")
}

func newReconciler(rates fixedRates) *Reconciler {
	return NewReconciler(fx.NewConverter(rates, "GBP"))
}

func listing(value float64, currency string) marketplace.Listing {
	return marketplace.Listing{
		Title: "listing",
		Price: marketplace.Price{Value: value, Currency: currency},
	}
}

func TestReconcileConvertsMixedCurrencies(t *testing.T) {
	r := newReconciler(fixedRates{"USD": 0.5})
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{
		listing(10, "USD"), // 5 GBP
		listing(20, "GBP"),
	}, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Market.Count != 2 {
		t.Fatalf("Count = %d, want 2", res.Market.Count)
	}
	if math.Abs(res.Market.Average-12.5) > 1e-9 {
		t.Fatalf("Average = %v, want 12.5", res.Market.Average)
	}
	if res.Market.Min != 5 || res.Market.Max != 20 {
		t.Fatalf("Min/Max = %v/%v, want 5/20", res.Market.Min, res.Market.Max)
	}
	if res.Market.Currency != "GBP" {
		t.Fatalf("Currency = %q", res.Market.Currency)
	}
}

func TestReconcilePreservesListingOrder(t *testing.T) {
	r := newReconciler(nil)
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{
		listing(60, "GBP"),
		listing(50, "GBP"),
		listing(70, "GBP"),
	}, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := []float64{60, 50, 70}
	for i, p := range res.Market.Prices {
		if p != want[i] {
			t.Fatalf("Prices = %v, want marketplace order %v", res.Market.Prices, want)
		}
	}
}

func TestReconcileDropsUnpricedListings(t *testing.T) {
	r := newReconciler(nil)
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{
		listing(0, "GBP"),
		listing(30, "GBP"),
	}, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Market.Count != 1 || res.Market.Average != 30 {
		t.Fatalf("got %+v, want single 30 GBP price", res.Market)
	}
}

func TestReconcileEmptyMarketplaceIsFatal(t *testing.T) {
	r := newReconciler(nil)

	_, err := r.Reconcile(context.Background(), nil, []float64{55, 60})
	if !errors.Is(err, ErrNoValidPrices) {
		t.Fatalf("err = %v, want ErrNoValidPrices", err)
	}

	_, err = r.Reconcile(context.Background(), []marketplace.Listing{listing(0, "GBP")}, nil)
	if !errors.Is(err, ErrNoValidPrices) {
		t.Fatalf("all-unpriced err = %v, want ErrNoValidPrices", err)
	}
}

func TestReconcileEmptyCatalogueIsNotFatal(t *testing.T) {
	r := newReconciler(nil)
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{listing(60, "GBP"), listing(50, "GBP")}, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.CatalogueAverage != 0 || res.CatalogueCount != 0 {
		t.Fatalf("catalogue stats = %v/%d, want zeroes", res.CatalogueAverage, res.CatalogueCount)
	}
	if res.Market.Average != 55 {
		t.Fatalf("Average = %v, want 55", res.Market.Average)
	}
	if res.Market.Trend != TrendLimited {
		t.Fatalf("Trend = %q, want %q", res.Market.Trend, TrendLimited)
	}
}

func TestReconcileConcurrent(t *testing.T) {
	// One reconciler serves every request; conversions from parallel
	// valuations must not interfere.
	r := newReconciler(fixedRates{"USD": 0.5, "EUR": 0.9})
	listings := []marketplace.Listing{
		listing(10, "USD"),
		listing(20, "EUR"),
		listing(30, "GBP"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Reconcile(context.Background(), listings, []float64{40})
			if err != nil {
				t.Errorf("Reconcile: %v", err)
				return
			}
			if math.Abs(res.Market.Average-(5+18+30)/3.0) > 1e-9 {
				t.Errorf("Average = %v", res.Market.Average)
			}
		}()
	}
	wg.Wait()
}

func TestTrendCountsAllListings(t *testing.T) {
	// Unpriced listings still signal sales activity; only the price
	// aggregates exclude them.
	r := newReconciler(nil)
	listings := make([]marketplace.Listing, 0, 7)
	for i := 0; i < 5; i++ {
		listings = append(listings, listing(float64(10+i), "GBP"))
	}
	listings = append(listings, listing(0, "GBP"), listing(0, "GBP"))

	res, err := r.Reconcile(context.Background(), listings, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Market.Count != 5 {
		t.Fatalf("Count = %d, want 5 priced listings", res.Market.Count)
	}
	if res.Market.Trend != TrendLow {
		t.Fatalf("Trend = %q, want %q from 7 raw listings", res.Market.Trend, TrendLow)
	}
}

func TestReconcileFXFailureKeepsAmount(t *testing.T) {
	r := newReconciler(fixedRates{}) // every lookup errors
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{listing(100, "USD")}, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Market.Average != 100 {
		t.Fatalf("Average = %v, want unconverted 100", res.Market.Average)
	}
}

func TestReconcileFullScenario(t *testing.T) {
	// Batman #1 (1940): three live listings, two catalogue comparables.
	r := NewReconciler(fx.NewConverter(fixedRates{}, "USD"))
	res, err := r.Reconcile(context.Background(), []marketplace.Listing{
		listing(50, "USD"),
		listing(60, "USD"),
		listing(70, "USD"),
	}, []float64{45.0, 55.0})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Market.Average != 60.00 {
		t.Fatalf("Average = %v, want 60.00", res.Market.Average)
	}
	if res.CatalogueAverage != 50.00 {
		t.Fatalf("CatalogueAverage = %v, want 50.00", res.CatalogueAverage)
	}
	if res.Market.Trend != TrendLimited {
		t.Fatalf("Trend = %q, want %q", res.Market.Trend, TrendLimited)
	}
	if res.Market.Count != 3 {
		t.Fatalf("Count = %d, want 3", res.Market.Count)
	}
}

func TestTrend(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{25, TrendHigh},
		{21, TrendHigh},
		{15, TrendModerate},
		{11, TrendModerate},
		{7, TrendLow},
		{6, TrendLow},
		{3, TrendLimited},
		{1, TrendLimited},
		{0, TrendStable},
	}
	for _, tc := range cases {
		if got := Trend(tc.count); got != tc.want {
			t.Errorf("Trend(%d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}

func TestBackfillYear(t *testing.T) {
	records := []catalogue.Record{
		{Title: "Spawn", Source: "wiki"},
		{Series: "The Outlaw Kid", Year: 1955, FullTitle: "The Outlaw Kid: 9 (1955)", Source: "index"},
	}

	id := BackfillYear(identity.ComicIdentity{Title: "The Outlaw Kid", Year: identity.Unset}, records)
	if id.Year != "1955" {
		t.Fatalf("Year = %q, want backfilled 1955", id.Year)
	}

	// An already-known year stays put.
	id = BackfillYear(identity.ComicIdentity{Title: "The Outlaw Kid", Year: "1956"}, records)
	if id.Year != "1956" {
		t.Fatalf("Year = %q, want untouched 1956", id.Year)
	}

	// No usable record leaves the identity alone.
	id = BackfillYear(identity.ComicIdentity{Title: "Spawn", Year: identity.Unset}, nil)
	if id.Year != identity.Unset {
		t.Fatalf("Year = %q, want unchanged sentinel", id.Year)
	}
}
