package price

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/auroraswap-apr/internal/fetch"
	"github.com/yourorg/auroraswap-apr/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *CoinGeckoClient) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewCoinGeckoClient(Options{
		BaseURL:    server.URL + "/",
		APIKey:     "demo-key",
		HTTPClient: server.Client(),
	})
	return server, client
}

func TestCoinGeckoClient_Price(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]map[string]float64{
			"ethereum": {"usd": 3012.55},
		})
	})

	got, err := client.Price(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 3012.55, got)
}

func TestCoinGeckoClient_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "missing key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
		},
		{
			name: "missing usd quote",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"borealis": {"eur": 0.01}}`))
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"status":{"error_code":429}}`, http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, tt.handler)

			got, err := client.Price(context.Background(), "borealis")
			require.Error(t, err)
			assert.Zero(t, got)
			assert.ErrorIs(t, err, model.ErrPriceUnavailable)
		})
	}
}

func TestCoinGeckoClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewCoinGeckoClient(Options{BaseURL: url, HTTPClient: &http.Client{Timeout: time.Second}})
	_, err := client.Price(context.Background(), "ethereum")
	assert.ErrorIs(t, err, model.ErrPriceUnavailable)
}

func TestCoinGeckoClient_EmptyID(t *testing.T) {
	client := NewCoinGeckoClient(Options{})
	_, err := client.Price(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrPriceUnavailable)
}

func TestCoinGeckoClient_RetriesTransientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ethereum": {"usd": 2500}}`))
	}))
	defer server.Close()

	retry := fetch.NewRetryClient(2)
	retry.RetryWaitMin = time.Millisecond
	retry.RetryWaitMax = 5 * time.Millisecond

	client := NewCoinGeckoClient(Options{BaseURL: server.URL, HTTPClient: retry.StandardClient()})
	got, err := client.Price(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCoinGeckoClient_RateLimiterHonoursContext(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum": {"usd": 1}}`))
	})
	client = NewCoinGeckoClient(Options{BaseURL: client.baseURL, HTTPClient: client.httpClient, RequestsPerSecond: 0.001, Burst: 1})

	_, err := client.Price(context.Background(), "ethereum")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.Price(ctx, "ethereum")
	assert.ErrorIs(t, err, model.ErrPriceUnavailable)
}
