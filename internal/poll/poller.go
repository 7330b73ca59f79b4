package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
	"github.com/mytechsonamy/mytrader-feed/internal/storage"
)

// Health is a point-in-time snapshot of the poller's counters.
type Health struct {
	LastCycleAt        time.Time `json:"last_cycle_at"`
	LastSuccessAt      time.Time `json:"last_success_at"`
	LastCycleSuccesses int       `json:"last_cycle_successes"`
	LastCycleFailures  int       `json:"last_cycle_failures"`
	TotalSuccesses     int64     `json:"total_successes"`
	TotalFailures      int64     `json:"total_failures"`
	Cycles             int64     `json:"cycles"`
}

// Poller periodically fetches quotes for the symbol universe.
type Poller struct {
	cfg    config.PollingConfig
	client *Client
	store  storage.QuoteStore
	logger *slog.Logger

	events chan model.PriceEvent

	symbolsMu sync.RWMutex
	symbols   []config.SymbolConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	healthMu sync.RWMutex
	health   Health
}

// New creates a Poller. store may be nil in tests; persistence is then skipped.
func New(cfg config.PollingConfig, client *Client, store storage.QuoteStore, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger.With("component", "poll"),
		events: make(chan model.PriceEvent, cfg.BufferSize),
	}
}

// Start begins the polling loop for the given universe.
func (p *Poller) Start(ctx context.Context, symbols []config.SymbolConfig) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.UpdateSymbols(symbols)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"symbols", len(symbols),
	)
	return nil
}

// Stop gracefully shuts down the poller. The in-flight cycle is allowed to
// finish its current requests.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("poller stop timed out")
		return ctx.Err()
	}
}

// Events returns the normalized event stream. Each cycle produces a finite
// burst; the channel is never closed.
func (p *Poller) Events() <-chan model.PriceEvent {
	return p.events
}

// UpdateSymbols replaces the polled universe. Unlike the streaming client
// the poller has no provider cap; it covers every configured symbol.
func (p *Poller) UpdateSymbols(symbols []config.SymbolConfig) {
	cp := make([]config.SymbolConfig, len(symbols))
	copy(cp, symbols)

	p.symbolsMu.Lock()
	p.symbols = cp
	p.symbolsMu.Unlock()
}

// Health returns a snapshot of the poller's counters.
func (p *Poller) Health() Health {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.cycle()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.cycle()
		}
	}
}

// cycle fetches every symbol once, with bounded concurrency. A symbol's
// failure never aborts the rest of the cycle.
func (p *Poller) cycle() {
	start := time.Now()

	p.symbolsMu.RLock()
	symbols := p.symbols
	p.symbolsMu.RUnlock()

	if len(symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var succeeded, failed atomic.Int64

	resultsMu := sync.Mutex{}
	results := make([]model.PriceEvent, 0, len(symbols))

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym config.SymbolConfig) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			ev, err := p.pollSymbol(sym)
			if err != nil {
				p.logger.Warn("failed to poll symbol",
					"symbol", sym.Symbol,
					"error", err,
				)
				failed.Add(1)
				return
			}

			resultsMu.Lock()
			results = append(results, ev)
			resultsMu.Unlock()
			succeeded.Add(1)
		}(sym)
	}

	wg.Wait()

	// Persistence happens every cycle: this client is the canonical source
	// of historical records whether or not its output is routed downstream.
	if p.store != nil && len(results) > 0 {
		persistCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		if err := p.store.SaveQuotes(persistCtx, results); err != nil {
			p.logger.Error("failed to persist quotes", "error", err, "count", len(results))
		}
		cancel()
	}

	for _, ev := range results {
		select {
		case p.events <- ev:
		case <-p.ctx.Done():
			return
		}
	}

	now := time.Now()
	p.healthMu.Lock()
	p.health.LastCycleAt = now
	if succeeded.Load() > 0 {
		p.health.LastSuccessAt = now
	}
	p.health.LastCycleSuccesses = int(succeeded.Load())
	p.health.LastCycleFailures = int(failed.Load())
	p.health.TotalSuccesses += succeeded.Load()
	p.health.TotalFailures += failed.Load()
	p.health.Cycles++
	p.healthMu.Unlock()

	p.logger.Info("poll cycle complete",
		"symbols", len(symbols),
		"succeeded", succeeded.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollSymbol fetches one symbol and normalizes it. The change fields come
// from the provider's own previous close.
func (p *Poller) pollSymbol(sym config.SymbolConfig) (model.PriceEvent, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	quote, err := p.client.GetQuote(ctx, sym.Symbol)
	if err != nil {
		return model.PriceEvent{}, err
	}

	prevClose := quote.PreviousClose
	return model.NewPriceEvent(
		sym.Symbol,
		model.AssetClass(sym.AssetClass),
		sym.Venue,
		quote.Price,
		&prevClose,
		quote.Volume,
		quote.Time,
		model.SourcePollingFallback,
	)
}
