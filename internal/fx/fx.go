// Package fx converts listing prices into the reporting currency using
// a public exchange-rate service.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/defibabylon/collectorsage/internal/logging"
)

// RateSource yields the conversion rate from one currency to another.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Client fetches rates from an exchangerate-api style endpoint:
// GET {base}/{from} returns a rates table keyed by currency code.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a rate client against the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.exchangerate-api.com/v4/latest"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the multiplier converting one unit of from into to.
func (c *Client) Rate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("currency codes required")
	}
	if from == to {
		return 1, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+from, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create rate request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("rate service returned status %d: %s", resp.StatusCode, string(body))
	}

	var rr ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}
	rate, ok := rr.Rates[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no rate from %s to %s", from, to)
	}
	return rate, nil
}

// Converter converts amounts into a target currency. It holds no
// mutable state, so one Converter serves any number of concurrent
// valuations; rate memoization lives in the per-valuation Session.
type Converter struct {
	source RateSource
	target string
}

// NewConverter builds a converter into the target reporting currency.
func NewConverter(source RateSource, target string) *Converter {
	if target == "" {
		target = "GBP"
	}
	return &Converter{
		source: source,
		target: strings.ToUpper(target),
	}
}

// Target returns the reporting currency code.
func (c *Converter) Target() string {
	return c.target
}

// Session starts a conversion session for a single valuation. The rate
// memo is scoped to the session: the rate service is hit at most once
// per currency within a valuation, and a failed lookup never outlives
// the request that saw it.
func (c *Converter) Session() *Session {
	return &Session{
		conv: c,
		memo: make(map[string]float64),
	}
}

// Session memoizes rates for one valuation. Not safe for concurrent
// use; each request takes its own.
type Session struct {
	conv *Converter
	memo map[string]float64
}

// Convert returns amount expressed in the target currency. Conversion
// failure falls back to the unconverted amount: a roughly right price
// beats a dropped listing.
func (s *Session) Convert(ctx context.Context, amount float64, currency string) float64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == s.conv.target {
		return amount
	}

	rate, ok := s.memo[currency]
	if !ok {
		var err error
		rate, err = s.conv.source.Rate(ctx, currency, s.conv.target)
		if err != nil {
			logging.FX("conversion %s->%s failed, keeping unconverted amount: %v", currency, s.conv.target, err)
			// Memoize the identity rate so a dead rate service costs one
			// lookup per currency within this valuation, not one per
			// listing. The next valuation retries.
			rate = 1
		}
		s.memo[currency] = rate
	}
	return amount * rate
}
