package poll

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

// fakeStore records SaveQuotes calls.
type fakeStore struct {
	mu    sync.Mutex
	saved [][]model.PriceEvent
}

func (f *fakeStore) SaveQuotes(ctx context.Context, events []model.PriceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]model.PriceEvent, len(events))
	copy(cp, events)
	f.saved = append(f.saved, cp)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close()                         {}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func testUniverse() []config.SymbolConfig {
	return []config.SymbolConfig{
		{Symbol: "AAPL", AssetClass: "STOCK", Venue: "NASDAQ", Tier: config.TierPosition, Rank: 1},
		{Symbol: "GARAN.IS", AssetClass: "STOCK", Venue: "BIST", Tier: config.TierWatchlist, Rank: 1},
		{Symbol: "BTC-USD", AssetClass: "CRYPTO", Venue: "CCC", Tier: config.TierPopular, Rank: 1},
	}
}

func TestCycle_PerSymbolFailureIsolation(t *testing.T) {
	now := time.Now().Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbols") {
		case "AAPL":
			fmt.Fprint(w, quoteBody("AAPL", 150, 148, 1000, now))
		case "GARAN.IS":
			// Provider rejects this one; the rest of the cycle continues.
			w.WriteHeader(http.StatusUnauthorized)
		case "BTC-USD":
			fmt.Fprint(w, quoteBody("BTC-USD", 65000, 64000, 10, now))
		}
	}))
	defer srv.Close()

	store := &fakeStore{}
	client := NewClient(srv.URL, WithRetry(fastRetry()))
	p := New(config.PollingConfig{
		Interval:    time.Hour, // only the immediate cycle runs
		Timeout:     5 * time.Second,
		Concurrency: 2,
		BufferSize:  100,
	}, client, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.ctx, p.cancel = ctx, cancel
	p.UpdateSymbols(testUniverse())

	p.cycle()

	h := p.Health()
	assert.Equal(t, 2, h.LastCycleSuccesses)
	assert.Equal(t, 1, h.LastCycleFailures)
	assert.Equal(t, int64(1), h.Cycles)
	assert.False(t, h.LastSuccessAt.IsZero())

	// Both successful quotes were persisted in one batch.
	require.Equal(t, 1, store.calls())
	assert.Len(t, store.saved[0], 2)

	// Both events were emitted.
	var events []model.PriceEvent
	for i := 0; i < 2; i++ {
		select {
		case ev := <-p.Events():
			events = append(events, ev)
		default:
			t.Fatalf("missing event %d", i)
		}
	}
	for _, ev := range events {
		assert.Equal(t, model.SourcePollingFallback, ev.Source)
		assert.Equal(t, model.QualityFallback, ev.Quality)
		require.NotNil(t, ev.PreviousClose)
	}
}

func TestCycle_ProviderPreviousClose(t *testing.T) {
	now := time.Now().Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody("AAPL", 150.00, 148.00, 1000, now))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetry(fastRetry()))
	p := New(config.PollingConfig{
		Interval: time.Hour, Timeout: 5 * time.Second, Concurrency: 1, BufferSize: 10,
	}, client, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.ctx, p.cancel = ctx, cancel
	p.UpdateSymbols(testUniverse()[:1])

	p.cycle()

	select {
	case ev := <-p.Events():
		assert.Equal(t, "2", ev.ChangeAbs.String())
		// 2 / 148 * 100 ≈ 1.3514
		pct, _ := ev.ChangePct.Round(4).Float64()
		assert.InDelta(t, 1.3514, pct, 0.001)
	default:
		t.Fatal("expected an event")
	}
}

func TestPoller_StartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody("AAPL", 150, 148, 1000, time.Now().Unix()))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetry(fastRetry()))
	p := New(config.PollingConfig{
		Interval: time.Hour, Timeout: time.Second, Concurrency: 1, BufferSize: 10,
	}, client, nil, nil)

	require.NoError(t, p.Start(context.Background(), testUniverse()[:1]))

	// Give the immediate cycle time to run.
	deadline := time.After(2 * time.Second)
	select {
	case <-p.Events():
	case <-deadline:
		t.Fatal("no event from initial cycle")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
}
