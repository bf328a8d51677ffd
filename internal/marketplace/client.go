// Package marketplace fetches live sold listings from the eBay Browse
// API. It owns OAuth token refresh and query shaping; price math lives
// in the pricing package.
package marketplace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/defibabylon/collectorsage/internal/cache"
	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
)

const tokenCacheKey = "marketplace:oauth_token"

// Price is a listed amount with its currency code.
type Price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Listing is one sold marketplace listing. Order is preserved exactly
// as the marketplace returned it; downstream trend math depends on the
// newest-first ordering of the sold feed.
type Listing struct {
	Title     string `json:"title"`
	Condition string `json:"condition"`
	Price     Price  `json:"price"`
	EndDate   string `json:"end_date,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Config carries client credentials and endpoint configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
	CategoryID   string
	Country      string
	Timeout      time.Duration
	TokenTTL     time.Duration
}

// Client talks to the marketplace Browse API.
type Client struct {
	cfg   Config
	http  *http.Client
	cache cache.Cache
}

// NewClient validates credentials and returns a Browse API client.
func NewClient(cfg Config, c cache.Cache) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("marketplace credentials required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ebay.com/buy/browse/v1"
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://api.ebay.com/identity/v1/oauth2/token"
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = "158671" // collectible comics
	}
	if cfg.Country == "" {
		cfg.Country = "GB"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: c,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached application token, refreshing via the
// client-credentials grant on miss.
func (c *Client) token(ctx context.Context) (string, error) {
	if tok, err := c.cache.Get(ctx, tokenCacheKey); err == nil && tok != "" {
		return tok, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "https://api.ebay.com/oauth/api_scope")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned an empty token")
	}

	ttl := c.cfg.TokenTTL
	if tok.ExpiresIn > 60 {
		// Refresh a minute early so an in-flight search never carries a
		// token that expires mid-request.
		ttl = time.Duration(tok.ExpiresIn-60) * time.Second
	}
	if err := c.cache.Set(ctx, tokenCacheKey, tok.AccessToken, ttl); err != nil {
		logging.MarketplaceDebug("failed to cache token: %v", err)
	}
	logging.Marketplace("refreshed application token (ttl %s)", ttl)
	return tok.AccessToken, nil
}

// Browse API wire types. Only the fields the pipeline reads.
type browseResponse struct {
	Total         int              `json:"total"`
	ItemSummaries []browseItem     `json:"itemSummaries"`
	Warnings      []map[string]any `json:"warnings,omitempty"`
}

type browseItem struct {
	Title     string      `json:"title"`
	Condition string      `json:"condition"`
	Price     browsePrice `json:"price"`
	ItemEnd   string      `json:"itemEndDate"`
	WebURL    string      `json:"itemWebUrl"`
}

type browsePrice struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// SearchSold returns recently sold listings for the identity, newest
// first as the marketplace reports them.
func (c *Client) SearchSold(ctx context.Context, id identity.ComicIdentity, limit int) ([]Listing, error) {
	timer := logging.StartTimer(logging.CategoryMarketplace, "SearchSold")
	defer timer.Stop()

	if limit <= 0 {
		limit = 50
	}

	tok, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("marketplace auth failed: %w", err)
	}

	q := url.Values{}
	q.Set("q", id.SearchQuery())
	q.Set("category_ids", c.cfg.CategoryID)
	q.Set("filter", strings.Join([]string{
		"price:[10..]",
		"priceCurrency:GBP",
		"conditionIds:{3000}",
		"buyingOptions:{FIXED_PRICE}",
		"soldItemsOnly:true",
	}, ","))
	q.Set("item_location_country", c.cfg.Country)
	q.Set("limit", strconv.Itoa(limit))

	endpoint := c.cfg.BaseURL + "/item_summary/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_GB")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("marketplace returned status %d: %s", resp.StatusCode, string(body))
	}

	var br browseResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("failed to decode marketplace response: %w", err)
	}

	listings := make([]Listing, 0, len(br.ItemSummaries))
	for _, item := range br.ItemSummaries {
		value, err := strconv.ParseFloat(item.Price.Value, 64)
		if err != nil {
			logging.MarketplaceDebug("skipping listing with unparseable price %q", item.Price.Value)
			continue
		}
		listings = append(listings, Listing{
			Title:     item.Title,
			Condition: item.Condition,
			Price:     Price{Value: value, Currency: item.Price.Currency},
			EndDate:   item.ItemEnd,
			URL:       item.WebURL,
		})
	}

	logging.Marketplace("search %q: %d listings (%d reported)", id.SearchQuery(), len(listings), br.Total)
	return listings, nil
}
