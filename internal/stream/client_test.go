package stream

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(config.StreamingConfig{
		URL:           "wss://stream.example.com/v2",
		Key:           "k",
		Secret:        "s",
		AuthTimeout:   time.Second,
		SilenceWindow: 30 * time.Second,
		BufferSize:    100,
		MaxSymbols:    10,
	}, slog.Default())
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.subs.Apply([]config.SymbolConfig{
		{Symbol: "AAPL", AssetClass: "STOCK", Venue: "NASDAQ", Tier: config.TierPosition, Rank: 1},
		{Symbol: "BTCUSDT", AssetClass: "CRYPTO", Venue: "BINANCE", Tier: config.TierWatchlist, Rank: 1},
	})
	return c
}

func TestHandleFrames_Trade(t *testing.T) {
	c := testClient(t)

	data := []byte(`[{"T":"t","S":"AAPL","p":150.25,"s":100,"t":"2025-06-02T14:30:00Z"}]`)
	if err := c.handleFrames(TimestampedMessage{Data: data, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Symbol != "AAPL" {
			t.Errorf("Symbol = %s, want AAPL", ev.Symbol)
		}
		if ev.Price.String() != "150.25" {
			t.Errorf("Price = %s, want 150.25", ev.Price)
		}
		if ev.Source != model.SourceStreaming {
			t.Errorf("Source = %s, want STREAMING", ev.Source)
		}
		if ev.Quality != model.QualityStreaming {
			t.Errorf("Quality = %d, want %d", ev.Quality, model.QualityStreaming)
		}
		if ev.AssetClass != model.AssetStock {
			t.Errorf("AssetClass = %s, want STOCK", ev.AssetClass)
		}
		want := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
		if !ev.EventTime.Equal(want) {
			t.Errorf("EventTime = %v, want %v", ev.EventTime, want)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestHandleFrames_QuoteMid(t *testing.T) {
	c := testClient(t)

	data := []byte(`[{"T":"q","S":"BTCUSDT","bp":65000,"ap":65010,"t":"2025-06-02T14:30:00Z"}]`)
	if err := c.handleFrames(TimestampedMessage{Data: data, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Price.String() != "65005" {
			t.Errorf("Price = %s, want mid 65005", ev.Price)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestHandleFrames_BatchPreservesOrder(t *testing.T) {
	c := testClient(t)

	data := []byte(`[
		{"T":"t","S":"AAPL","p":150.00,"s":10,"t":"2025-06-02T14:30:00Z"},
		{"T":"t","S":"AAPL","p":150.10,"s":10,"t":"2025-06-02T14:30:01Z"},
		{"T":"t","S":"AAPL","p":150.20,"s":10,"t":"2025-06-02T14:30:02Z"}
	]`)
	if err := c.handleFrames(TimestampedMessage{Data: data, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames: %v", err)
	}

	want := []string{"150", "150.1", "150.2"}
	for i, w := range want {
		select {
		case ev := <-c.Events():
			if ev.Price.String() != w {
				t.Errorf("event[%d].Price = %s, want %s", i, ev.Price, w)
			}
		default:
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestHandleFrames_MalformedDropped(t *testing.T) {
	c := testClient(t)

	if err := c.handleFrames(TimestampedMessage{Data: []byte(`{not json`), ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames returned error for malformed frame: %v", err)
	}

	select {
	case <-c.Events():
		t.Fatal("no event expected for malformed frame")
	default:
	}

	if h := c.Health(); h.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", h.ParseErrors)
	}
}

func TestHandleFrames_InvalidPriceDropped(t *testing.T) {
	c := testClient(t)

	data := []byte(`[{"T":"t","S":"AAPL","p":0,"s":100,"t":"2025-06-02T14:30:00Z"}]`)
	if err := c.handleFrames(TimestampedMessage{Data: data, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames: %v", err)
	}

	select {
	case <-c.Events():
		t.Fatal("no event expected for non-positive price")
	default:
	}
}

func TestHandleFrames_UnsubscribedSymbolSkipped(t *testing.T) {
	c := testClient(t)

	data := []byte(`[{"T":"t","S":"TSLA","p":200,"s":1,"t":"2025-06-02T14:30:00Z"}]`)
	if err := c.handleFrames(TimestampedMessage{Data: data, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handleFrames: %v", err)
	}

	select {
	case <-c.Events():
		t.Fatal("no event expected for unsubscribed symbol")
	default:
	}
}

func TestHandleFrames_ErrorCodes(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantSession bool // true = session must end
	}{
		{"auth error ends session", `[{"T":"error","code":401,"msg":"unauthorized"}]`, true},
		{"connection limit ends session", `[{"T":"error","code":406,"msg":"connection limit exceeded"}]`, true},
		{"duplicate connection ends session", `[{"T":"error","code":408,"msg":"duplicate connection"}]`, true},
		{"unknown symbol continues", `[{"T":"error","code":405,"msg":"unknown symbol"}]`, false},
		{"internal error continues", `[{"T":"error","code":500,"msg":"internal error"}]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t)
			err := c.handleFrames(TimestampedMessage{Data: []byte(tt.data), ReceivedAt: time.Now()})
			if tt.wantSession && err == nil {
				t.Error("expected session-ending error, got nil")
			}
			if !tt.wantSession && err != nil {
				t.Errorf("expected stream to continue, got %v", err)
			}
		})
	}
}

func TestReadSession_SilenceTimeout(t *testing.T) {
	c := testClient(t)
	c.cfg.SilenceWindow = 100 * time.Millisecond

	// Connection stays open but the provider sends nothing after this.
	c.mu.Lock()
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	conn := NewConn(ConnConfig{URL: c.cfg.URL, WriteTimeout: time.Second, BufferSize: 1}, slog.Default())

	errCh := make(chan error, 1)
	go func() { errCh <- c.readSession(conn) }()

	select {
	case err := <-errCh:
		if err != ErrSilence {
			t.Fatalf("readSession returned %v, want ErrSilence", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("readSession did not return after the silence window elapsed")
	}
}

func TestRecordMessage_Rate(t *testing.T) {
	c := testClient(t)

	start := time.Now()
	for i := 0; i < 120; i++ {
		c.recordMessage(start.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	// 119 messages over ~59.5s, then the 120th closes the window at 60s+.
	c.recordMessage(start.Add(61 * time.Second))

	h := c.Health()
	if h.MessagesPerMinute < 100 || h.MessagesPerMinute > 140 {
		t.Errorf("MessagesPerMinute = %v, want ~120", h.MessagesPerMinute)
	}
	if !h.LastMessageAt.Equal(start.Add(61 * time.Second)) {
		t.Errorf("LastMessageAt = %v", h.LastMessageAt)
	}
}
