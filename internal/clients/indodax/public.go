package indodax

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PublicClient fetches unauthenticated market data. Ticker responses are
// cached briefly so evaluators running in the same tick share one fetch
// per pair.
type PublicClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cachedTicker
	now      func() time.Time
}

type cachedTicker struct {
	ticker    Ticker
	fetchedAt time.Time
}

// NewPublicClient creates a market-data client against baseURL.
func NewPublicClient(baseURL string, timeout, cacheTTL time.Duration, log zerolog.Logger) *PublicClient {
	return &PublicClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "indodax-public").Logger(),
		cacheTTL:   cacheTTL,
		cache:      make(map[string]cachedTicker),
		now:        time.Now,
	}
}

type tickerResponse struct {
	Ticker struct {
		Last flexFloat `json:"last"`
		High flexFloat `json:"high"`
		Low  flexFloat `json:"low"`
		Buy  flexFloat `json:"buy"`
		Sell flexFloat `json:"sell"`
	} `json:"ticker"`
}

// Ticker returns the latest price snapshot for a pair, served from cache
// when fresh enough.
func (c *PublicClient) Ticker(ctx context.Context, pair string) (Ticker, error) {
	c.mu.Lock()
	if entry, ok := c.cache[pair]; ok && c.now().Sub(entry.fetchedAt) < c.cacheTTL {
		c.mu.Unlock()
		return entry.ticker, nil
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s/ticker/%s", c.baseURL, pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Ticker{}, fmt.Errorf("failed to build ticker request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticker{}, fmt.Errorf("failed to fetch ticker for %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Ticker{}, fmt.Errorf("ticker request for %s returned status %d", pair, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Ticker{}, fmt.Errorf("failed to read ticker response: %w", err)
	}

	var parsed tickerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Ticker{}, fmt.Errorf("failed to decode ticker for %s: %w", pair, err)
	}

	ticker := Ticker{
		Pair: pair,
		Last: float64(parsed.Ticker.Last),
		High: float64(parsed.Ticker.High),
		Low:  float64(parsed.Ticker.Low),
		Buy:  float64(parsed.Ticker.Buy),
		Sell: float64(parsed.Ticker.Sell),
	}

	c.mu.Lock()
	c.cache[pair] = cachedTicker{ticker: ticker, fetchedAt: c.now()}
	c.mu.Unlock()

	return ticker, nil
}

// LastPrice is a convenience wrapper returning only the last trade price.
func (c *PublicClient) LastPrice(ctx context.Context, pair string) (float64, error) {
	ticker, err := c.Ticker(ctx, pair)
	if err != nil {
		return 0, err
	}
	return ticker.Last, nil
}
