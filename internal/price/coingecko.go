// Package price provides spot price lookups in USD from the CoinGecko API.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/auroraswap-apr/internal/fetch"
	"github.com/yourorg/auroraswap-apr/internal/model"
)

// DefaultBaseURL is the public CoinGecko v3 API
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Options configures a CoinGeckoClient
type Options struct {
	BaseURL string
	APIKey  string

	// RequestsPerSecond and Burst bound outgoing calls; zero disables limiting
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the retrying client, mostly for tests
	HTTPClient *http.Client
}

// CoinGeckoClient fetches spot prices. It is safe for concurrent use.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a price client.
func NewCoinGeckoClient(opts Options) *CoinGeckoClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = fetch.StandardClient(fetch.NewRetryClient(fetch.DefaultRetryMax), 10*time.Second)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &CoinGeckoClient{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// Price returns the USD spot price for a CoinGecko coin id.
func (c *CoinGeckoClient) Price(ctx context.Context, coinID string) (float64, error) {
	if coinID == "" {
		return 0, model.Errorf(model.KindPriceUnavailable, "price", "empty coin id")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, model.NewError(model.KindPriceUnavailable, coinID, fmt.Errorf("rate limiter: %w", err))
		}
	}

	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, model.NewError(model.KindPriceUnavailable, coinID, fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	logrus.Debugf("Fetching price for %s from CoinGecko", coinID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, model.NewError(model.KindPriceUnavailable, coinID, fmt.Errorf("error fetching price: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, model.Errorf(model.KindPriceUnavailable, coinID, "CoinGecko API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, model.NewError(model.KindPriceUnavailable, coinID, fmt.Errorf("error decoding response: %w", err))
	}

	quote, ok := response[coinID]
	if !ok {
		return 0, model.Errorf(model.KindPriceUnavailable, coinID, "no price returned")
	}
	usd, ok := quote["usd"]
	if !ok {
		return 0, model.Errorf(model.KindPriceUnavailable, coinID, "no usd quote returned")
	}

	logrus.WithFields(logrus.Fields{"coin": coinID, "usd": usd}).Debug("Price fetched")
	return usd, nil
}
