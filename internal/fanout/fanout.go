package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
	"github.com/mytechsonamy/mytrader-feed/internal/router"
)

// Publisher delivers a serialized message to one subscriber group.
type Publisher interface {
	Publish(ctx context.Context, group string, payload []byte) error
}

// Stats is a snapshot of the fanout's counters.
type Stats struct {
	Published      int64 `json:"published"`
	Coalesced      int64 `json:"coalesced"`
	PublishErrors  int64 `json:"publish_errors"`
	PendingSymbols int   `json:"pending_symbols"`
}

// Fanout drains forwarded events and publishes them to subscriber groups
// with a per-symbol rate cap. When a symbol produces updates faster than
// the cap, intermediate values are coalesced away and only the latest is
// held back; a held value is always published on a later flush tick, so
// subscribers converge on the true latest price.
type Fanout struct {
	cfg         config.FanoutConfig
	logger      *slog.Logger
	in          *router.GrowableBuffer[model.PriceEvent]
	pub         Publisher
	minInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the flush loop.
	pending    map[string]model.PriceEvent
	lastSentAt map[string]time.Time

	mu            sync.Mutex
	published     int64
	coalesced     int64
	publishErrors int64
	pendingCount  int
}

// New creates a fanout draining the given buffer into the publisher.
func New(cfg config.FanoutConfig, in *router.GrowableBuffer[model.PriceEvent], pub Publisher, logger *slog.Logger) *Fanout {
	if cfg.MaxUpdatesPerSec < 1 {
		cfg.MaxUpdatesPerSec = 1
	}
	return &Fanout{
		cfg:         cfg,
		logger:      logger.With("component", "fanout"),
		in:          in,
		pub:         pub,
		minInterval: time.Second / time.Duration(cfg.MaxUpdatesPerSec),
		pending:     make(map[string]model.PriceEvent),
		lastSentAt:  make(map[string]time.Time),
	}
}

// Start launches the flush loop.
func (f *Fanout) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("fanout started",
		"max_updates_per_sec", f.cfg.MaxUpdatesPerSec,
		"flush_granularity", f.cfg.FlushGranularity)
	return nil
}

// Stop flushes whatever is pending and terminates the loop.
func (f *Fanout) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("fanout shutdown timed out: %w", ctx.Err())
	}

	f.logger.Info("fanout stopped")
	return nil
}

func (f *Fanout) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.FlushGranularity)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			// Final drain so the last price of each symbol still goes
			// out, on a fresh context since ours is already cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			f.flush(ctx, time.Now(), true)
			cancel()
			return
		case now := <-ticker.C:
			f.flush(f.ctx, now, false)
		}
	}
}

// flush pulls everything the router forwarded since the last tick,
// coalesces per symbol, and publishes symbols whose rate window has
// elapsed. With force set the rate cap is ignored.
func (f *Fanout) flush(ctx context.Context, now time.Time, force bool) {
	for _, ev := range f.in.DrainTo(0) {
		if _, held := f.pending[ev.Symbol]; held {
			f.mu.Lock()
			f.coalesced++
			f.mu.Unlock()
		}
		f.pending[ev.Symbol] = ev
	}

	for symbol, ev := range f.pending {
		if !force && now.Sub(f.lastSentAt[symbol]) < f.minInterval {
			continue
		}
		f.publish(ctx, ev, now)
		delete(f.pending, symbol)
		f.lastSentAt[symbol] = now
	}

	f.mu.Lock()
	f.pendingCount = len(f.pending)
	f.mu.Unlock()
}

func (f *Fanout) publish(ctx context.Context, ev model.PriceEvent, now time.Time) {
	msg := NewMessage(ev, now)

	payload, err := json.Marshal(msg)
	if err != nil {
		f.mu.Lock()
		f.publishErrors++
		f.mu.Unlock()
		f.logger.Error("marshal message", "symbol", ev.Symbol, "error", err)
		return
	}

	delivered := 0
	for _, group := range msg.Groups() {
		if err := f.pub.Publish(ctx, group, payload); err != nil {
			f.mu.Lock()
			f.publishErrors++
			f.mu.Unlock()
			f.logger.Warn("publish failed", "group", group, "symbol", ev.Symbol, "error", err)
			continue
		}
		delivered++
	}

	// A message that reached no group at all was not published.
	if delivered == 0 {
		return
	}

	f.mu.Lock()
	f.published++
	f.mu.Unlock()
}

// Stats returns a snapshot of the fanout's counters.
func (f *Fanout) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Published:      f.published,
		Coalesced:      f.coalesced,
		PublishErrors:  f.publishErrors,
		PendingSymbols: f.pendingCount,
	}
}
