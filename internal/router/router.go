package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

// observation remembers the most recent price a source reported for a
// symbol, for cross-source comparison.
type observation struct {
	price decimal.Decimal
	at    time.Time
}

// Router consumes both ingestion clients and forwards events from whichever
// source is currently authoritative. All state transitions, the circuit
// breaker, and discrepancy detection run on a single goroutine; Stats and
// LastKnown take a read lock so the health endpoint never blocks the loop.
type Router struct {
	cfg    config.RouterConfig
	logger *slog.Logger

	streamIn <-chan model.PriceEvent
	pollIn   <-chan model.PriceEvent

	streamStatus StatusFunc
	pollStatus   StatusFunc

	out     *GrowableBuffer[model.PriceEvent]
	breaker *CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards everything below. The run loop is the only writer.
	mu                  sync.RWMutex
	state               State
	startedAt           time.Time
	stateEnteredAt      time.Time
	transitions         int64
	fallbackActivations int64
	fallbackDuration    time.Duration
	fallbackSince       time.Time
	recoverySeenAt      time.Time

	lastStreamEventAt time.Time
	lastPollEventAt   time.Time

	forwarded           int64
	suppressedByBreaker int64
	discrepancyWarnings int64

	lastForwarded map[string]decimal.Decimal
	lastKnown     map[string]model.PriceEvent
	prevClose     map[string]decimal.Decimal
	lastStream    map[string]observation
	lastPoll      map[string]observation
}

// New creates a router reading from the two ingestion channels. The status
// callbacks supply source liveness; they are polled on every evaluation
// tick and must not block.
func New(
	cfg config.RouterConfig,
	streamIn, pollIn <-chan model.PriceEvent,
	streamStatus, pollStatus StatusFunc,
	logger *slog.Logger,
) *Router {
	return &Router{
		cfg:          cfg,
		logger:       logger.With("component", "router"),
		streamIn:     streamIn,
		pollIn:       pollIn,
		streamStatus: streamStatus,
		pollStatus:   pollStatus,
		out:          NewGrowableBuffer[model.PriceEvent](cfg.BufferSize),
		breaker:      NewCircuitBreaker(cfg.BreakerThresholdPct),
		state:        StateProbing,

		lastForwarded: make(map[string]decimal.Decimal),
		lastKnown:     make(map[string]model.PriceEvent),
		prevClose:     make(map[string]decimal.Decimal),
		lastStream:    make(map[string]observation),
		lastPoll:      make(map[string]observation),
	}
}

// Out returns the buffer of forwarded events, drained by the fanout stage.
func (r *Router) Out() *GrowableBuffer[model.PriceEvent] {
	return r.out
}

// Start launches the routing loop.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	now := time.Now()
	r.mu.Lock()
	r.startedAt = now
	r.stateEnteredAt = now
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()

	r.logger.Info("router started",
		"startup_grace", r.cfg.StartupGrace,
		"failure_threshold", r.cfg.FailureThreshold,
		"silence_window", r.cfg.SilenceWindow)
	return nil
}

// Stop terminates the loop and closes the output buffer. Events already
// forwarded remain drainable.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("router shutdown timed out: %w", ctx.Err())
	}

	r.out.Close()
	r.logger.Info("router stopped")
	return nil
}

func (r *Router) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.streamIn:
			if !ok {
				r.streamIn = nil
				continue
			}
			r.onStreamEvent(ev)
		case ev, ok := <-r.pollIn:
			if !ok {
				r.pollIn = nil
				continue
			}
			r.onPollEvent(ev)
		case now := <-ticker.C:
			r.evaluate(now)
		}
	}
}

// onStreamEvent records streaming liveness and forwards the event when the
// primary source is authoritative.
func (r *Router) onStreamEvent(ev model.PriceEvent) {
	now := time.Now()

	r.mu.Lock()
	r.lastStreamEventAt = now
	r.lastStream[ev.Symbol] = observation{price: ev.Price, at: now}

	// Events flowing means the primary is ready; resolve probing early.
	if r.state == StateProbing {
		r.transitionLocked(StatePrimaryActive, "streaming events flowing", now)
	}

	if r.state != StatePrimaryActive {
		r.mu.Unlock()
		return
	}

	// Streaming frames carry no previous close; enrich from the close the
	// polling source reported for the symbol.
	if ev.PreviousClose == nil {
		if pc, ok := r.prevClose[ev.Symbol]; ok {
			ev = ev.WithPreviousClose(pc)
		}
	}

	ev, allow := r.applyQualityChecksLocked(ev, r.lastPoll[ev.Symbol], now)
	r.mu.Unlock()

	if allow {
		r.forward(ev)
	}
}

// onPollEvent records the provider-authoritative previous close and
// forwards the event when the fallback source is authoritative.
func (r *Router) onPollEvent(ev model.PriceEvent) {
	now := time.Now()

	r.mu.Lock()
	r.lastPollEventAt = now
	r.lastPoll[ev.Symbol] = observation{price: ev.Price, at: now}
	if ev.PreviousClose != nil && !ev.PreviousClose.IsZero() {
		r.prevClose[ev.Symbol] = *ev.PreviousClose
	}

	if r.state != StateFallbackActive {
		r.mu.Unlock()
		return
	}

	ev, allow := r.applyQualityChecksLocked(ev, r.lastStream[ev.Symbol], now)
	r.mu.Unlock()

	if allow {
		r.forward(ev)
	}
}

// applyQualityChecksLocked runs the circuit breaker and cross-source
// discrepancy check. The breaker suppresses the event; a discrepancy only
// reduces the quality score and warns. Must be called with the lock held.
func (r *Router) applyQualityChecksLocked(ev model.PriceEvent, other observation, now time.Time) (model.PriceEvent, bool) {
	last := r.lastForwarded[ev.Symbol]
	if !r.breaker.Allow(ev.Symbol, last, ev.Price) {
		r.suppressedByBreaker++
		r.logger.Warn("implausible move suppressed",
			"symbol", ev.Symbol,
			"source", ev.Source,
			"last_price", last,
			"next_price", ev.Price)
		return ev, false
	}

	if !other.at.IsZero() && now.Sub(other.at) <= r.cfg.DiscrepancyWindow && !other.price.IsZero() {
		deltaPct := ev.Price.Sub(other.price).Abs().
			Div(other.price).
			Mul(decimal.NewFromInt(100))
		if deltaPct.GreaterThan(decimal.NewFromFloat(r.cfg.DiscrepancyPct)) {
			r.discrepancyWarnings++
			r.logger.Warn("cross-source price discrepancy",
				"symbol", ev.Symbol,
				"source", ev.Source,
				"price", ev.Price,
				"other_price", other.price,
				"delta_pct", deltaPct.StringFixed(2))
			ev = ev.WithQualityPenalty(model.QualityDiscrepancyPenalty)
		}
	}

	return ev, true
}

// forward hands the event to the output buffer and updates last-known
// serving state. Breaker-suppressed events never reach here, so last-known
// always reflects a plausible price.
func (r *Router) forward(ev model.PriceEvent) {
	r.out.Send(ev)

	r.mu.Lock()
	r.lastForwarded[ev.Symbol] = ev.Price
	r.lastKnown[ev.Symbol] = ev
	r.forwarded++
	r.mu.Unlock()
}

// evaluate runs the state machine on the evaluation tick.
func (r *Router) evaluate(now time.Time) {
	streaming := r.streamStatus()
	polling := r.pollStatus()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateProbing:
		if streaming.Healthy {
			r.transitionLocked(StatePrimaryActive, "streaming ready", now)
			return
		}
		if now.Sub(r.startedAt) < r.cfg.StartupGrace {
			return
		}
		if polling.Healthy {
			r.transitionLocked(StateFallbackActive, "streaming not ready within startup grace", now)
		} else {
			r.transitionLocked(StateBothUnavailable, "no source available at startup", now)
		}

	case StatePrimaryActive:
		cause := ""
		if streaming.ConsecutiveFailures >= r.cfg.FailureThreshold {
			cause = "streaming failure threshold reached"
		} else if r.silentLocked(now) {
			cause = "message silence timeout"
		}
		if cause == "" {
			return
		}
		if polling.Healthy {
			r.transitionLocked(StateFallbackActive, cause, now)
		} else {
			r.transitionLocked(StateBothUnavailable, cause+", polling also unavailable", now)
		}

	case StateFallbackActive:
		// Recovery requires events actually flowing again, then a full
		// grace period without a relapse, so a flapping connection does
		// not bounce the active source.
		recovered := streaming.Healthy &&
			streaming.ConsecutiveFailures == 0 &&
			r.lastStreamEventAt.After(r.fallbackSince)
		if recovered {
			if r.recoverySeenAt.IsZero() {
				r.recoverySeenAt = now
				r.logger.Info("streaming recovery observed", "recovery_grace", r.cfg.RecoveryGrace)
			} else if now.Sub(r.recoverySeenAt) >= r.cfg.RecoveryGrace {
				r.transitionLocked(StatePrimaryActive, "streaming recovered", now)
			}
			return
		}
		r.recoverySeenAt = time.Time{}

		if !polling.Healthy {
			r.transitionLocked(StateBothUnavailable, "both sources unavailable", now)
		}

	case StateBothUnavailable:
		if streaming.Healthy {
			r.transitionLocked(StatePrimaryActive, "streaming recovered first", now)
			return
		}
		if polling.Healthy {
			r.transitionLocked(StateFallbackActive, "polling recovered first", now)
		}
	}
}

// silentLocked reports whether the streaming source has been quiet for
// longer than the silence window. Measured from entry into the state when
// no event has arrived yet.
func (r *Router) silentLocked(now time.Time) bool {
	since := r.lastStreamEventAt
	if since.Before(r.stateEnteredAt) {
		since = r.stateEnteredAt
	}
	return now.Sub(since) > r.cfg.SilenceWindow
}

// transitionLocked moves the state machine and maintains the failover
// counters. Must be called with the lock held.
func (r *Router) transitionLocked(to State, cause string, now time.Time) {
	from := r.state
	if from == to {
		return
	}

	if from == StateFallbackActive && !r.fallbackSince.IsZero() {
		r.fallbackDuration += now.Sub(r.fallbackSince)
	}
	if to == StateFallbackActive {
		r.fallbackActivations++
		r.fallbackSince = now
	}

	r.state = to
	r.stateEnteredAt = now
	r.recoverySeenAt = time.Time{}
	r.transitions++

	r.logger.Info("source transition",
		"from", from,
		"to", to,
		"cause", cause)
}

// LastKnown returns the most recent forwarded event for the symbol. Serves
// stale reads while both sources are down.
func (r *Router) LastKnown(symbol string) (model.PriceEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.lastKnown[symbol]
	return ev, ok
}

// LastKnownAll returns the most recent forwarded event for every symbol.
func (r *Router) LastKnownAll() []model.PriceEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PriceEvent, 0, len(r.lastKnown))
	for _, ev := range r.lastKnown {
		out = append(out, ev)
	}
	return out
}

// Stats returns a snapshot of the router's counters without blocking the
// routing loop.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	s := Stats{
		State:                r.state,
		LastTransitionAt:     r.stateEnteredAt,
		TimeInState:          now.Sub(r.stateEnteredAt),
		Transitions:          r.transitions,
		FallbackActivations:  r.fallbackActivations,
		FallbackDuration:     r.fallbackDuration,
		LastStreamingEventAt: r.lastStreamEventAt,
		LastPollingEventAt:   r.lastPollEventAt,
		Forwarded:            r.forwarded,
		SuppressedByBreaker:  r.suppressedByBreaker,
		DiscrepancyWarnings:  r.discrepancyWarnings,
		BreakerTrips:         r.breaker.Trips(),
	}
	if r.state == StateFallbackActive && !r.fallbackSince.IsZero() {
		s.FallbackDuration += now.Sub(r.fallbackSince)
	}
	return s
}
