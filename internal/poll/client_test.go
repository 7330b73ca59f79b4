package poll

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytechsonamy/mytrader-feed/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  1,
	}
}

func quoteBody(symbol string, price, prevClose, volume float64, ts int64) string {
	return fmt.Sprintf(`{"quoteResponse":{"result":[{"symbol":%q,"regularMarketPrice":%v,"regularMarketPreviousClose":%v,"regularMarketVolume":%v,"regularMarketTime":%d}],"error":null}}`,
		symbol, price, prevClose, volume, ts)
}

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, quotePath, r.URL.Path)
		assert.Equal(t, "GARAN.IS", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, quoteBody("GARAN.IS", 45.10, 44.50, 1250000, 1717346400))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(fastRetry()))
	quote, err := c.GetQuote(context.Background(), "GARAN.IS")
	require.NoError(t, err)

	assert.Equal(t, "GARAN.IS", quote.Symbol)
	assert.Equal(t, "45.1", quote.Price.String())
	assert.Equal(t, "44.5", quote.PreviousClose.String())
	assert.Equal(t, "1250000", quote.Volume.String())
	assert.Equal(t, time.Unix(1717346400, 0), quote.Time)
}

func TestGetQuote_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, quoteBody("AAPL", 150, 148, 1000, 1717346400))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(fastRetry()))
	quote, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, "150", quote.Price.String())
}

func TestGetQuote_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[],"error":null}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(fastRetry()))
	_, err := c.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGetQuote_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(fastRetry()))
	_, err := c.GetQuote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestGetQuote_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(fastRetry()))
	_, err := c.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "4xx responses must not be retried")
}
