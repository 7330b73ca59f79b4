package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
	"github.com/mytechsonamy/mytrader-feed/pkg/retry"
)

// Client is the streaming ingestion client. It owns one provider connection
// at a time, reconnecting indefinitely, and emits normalized price events.
type Client struct {
	cfg    config.StreamingConfig
	logger *slog.Logger

	subs    *SubscriptionSet
	events  chan model.PriceEvent
	updates chan []config.SymbolConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                  sync.RWMutex
	connected           bool
	authenticated       bool
	lastMessageAt       time.Time
	consecutiveFailures int
	reconnects          int64
	parseErrors         int64
	rateWindowStart     time.Time
	rateCount           int64
	ratePerMin          float64
}

// NewClient creates a streaming client for the given symbol universe.
func NewClient(cfg config.StreamingConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "stream"),
		subs:    NewSubscriptionSet(cfg.MaxSymbols),
		events:  make(chan model.PriceEvent, cfg.BufferSize),
		updates: make(chan []config.SymbolConfig, 1),
	}
}

// Start begins the connect/auth/subscribe/read cycle. Events are emitted on
// Events() until ctx is cancelled or Stop is called.
func (c *Client) Start(ctx context.Context, universe []config.SymbolConfig) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.subs.Apply(universe)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("streaming client started",
		"url", c.cfg.URL,
		"symbols", c.subs.Len(),
		"max_symbols", c.cfg.MaxSymbols,
	)
	return nil
}

// Stop gracefully shuts down the client.
func (c *Client) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("streaming client stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("streaming client stop timed out")
		return ctx.Err()
	}
}

// Events returns the normalized event stream. The channel is never closed;
// consumers must attach before Start to observe every event.
func (c *Client) Events() <-chan model.PriceEvent {
	return c.events
}

// UpdateSubscription applies a new symbol universe. The run loop diffs it
// against the current set and issues only incremental subscribe/unsubscribe
// frames; the connection stays up.
func (c *Client) UpdateSubscription(universe []config.SymbolConfig) {
	// Keep only the most recent pending update.
	for {
		select {
		case c.updates <- universe:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

// Health returns a snapshot of the client's counters.
func (c *Client) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Health{
		Connected:           c.connected,
		Authenticated:       c.authenticated,
		LastMessageAt:       c.lastMessageAt,
		MessagesPerMinute:   c.ratePerMin,
		ConsecutiveFailures: c.consecutiveFailures,
		Reconnects:          c.reconnects,
		ParseErrors:         c.parseErrors,
		SubscribedSymbols:   c.subs.Len(),
	}
}

// run owns the reconnect cycle: one session per iteration, exponential
// backoff with jitter between attempts, unbounded attempt count.
func (c *Client) run() {
	defer c.wg.Done()

	backoff := retry.Config{
		BaseDelay:  c.cfg.ReconnectBaseDelay,
		MaxDelay:   c.cfg.ReconnectMaxDelay,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
	attempt := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		authed, err := c.session()
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.connected = false
		c.authenticated = false
		c.consecutiveFailures++
		failures := c.consecutiveFailures
		c.reconnects++
		c.mu.Unlock()

		level := slog.LevelWarn
		if isAuthFailure(err) && failures >= 3 {
			// Repeated auth rejections usually mean bad credentials, not an outage.
			level = slog.LevelError
		}
		c.logger.Log(c.ctx, level, "streaming session ended",
			"error", err,
			"consecutive_failures", failures,
		)

		if authed {
			attempt = 0
		}
		attempt++

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(retry.Delay(backoff, attempt)):
		}
	}
}

func isAuthFailure(err error) bool {
	return err == ErrAuthRejected || err == ErrAuthTimeout
}

// session runs one connection lifetime: connect, authenticate, subscribe,
// then read until failure. Returns whether authentication succeeded.
func (c *Client) session() (authed bool, err error) {
	conn := NewConn(ConnConfig{
		URL:          c.cfg.URL,
		WriteTimeout: c.cfg.WriteTimeout,
		BufferSize:   c.cfg.BufferSize,
	}, c.logger)

	if err := conn.Connect(c.ctx); err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if err := c.authenticate(conn); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.authenticated = true
	c.consecutiveFailures = 0
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	symbols := c.subs.Symbols()
	if err := c.sendSubscribe(conn, "subscribe", symbols); err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}

	c.logger.Info("streaming session established", "symbols", len(symbols))

	return true, c.readSession(conn)
}

// authenticate sends the key/secret frame and waits for the provider's
// acknowledgment within the configured window.
func (c *Client) authenticate(conn *Conn) error {
	req := authRequest{Action: "auth", Key: c.cfg.Key, Secret: c.cfg.Secret}
	if err := conn.Send(marshalFrames(req)); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	deadline := time.NewTimer(c.cfg.AuthTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-deadline.C:
			return ErrAuthTimeout
		case err := <-conn.Errors():
			return err
		case msg := <-conn.Messages():
			var frames []wireFrame
			if err := json.Unmarshal(msg.Data, &frames); err != nil {
				c.logger.Warn("malformed frame during auth", "error", err)
				continue
			}
			for _, f := range frames {
				switch f.Type {
				case frameSuccess:
					if f.Msg == "authenticated" {
						return nil
					}
					// "connected" and other control acks are not the auth result.
				case frameError:
					if isAuthErrorCode(f.Code) {
						c.logger.Warn("authentication rejected", "code", f.Code, "msg", f.Msg)
						return ErrAuthRejected
					}
				}
			}
		}
	}
}

// sendSubscribe issues one subscribe or unsubscribe frame covering the
// trade, quote, and bar channels for the given symbols.
func (c *Client) sendSubscribe(conn *Conn, action string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	req := subscribeRequest{
		Action: action,
		Trades: symbols,
		Quotes: symbols,
		Bars:   symbols,
	}
	return conn.Send(marshalFrames(req))
}

// readSession consumes frames until the connection fails, silence exceeds
// the configured window, or the client is stopped.
func (c *Client) readSession(conn *Conn) error {
	silence := time.NewTicker(time.Second)
	defer silence.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil

		case err := <-conn.Errors():
			return err

		case universe := <-c.updates:
			added, removed := c.subs.Apply(universe)
			if err := c.sendSubscribe(conn, "unsubscribe", removed); err != nil {
				return fmt.Errorf("unsubscribe: %w", err)
			}
			if err := c.sendSubscribe(conn, "subscribe", added); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			c.logger.Info("subscription updated",
				"added", len(added),
				"removed", len(removed),
				"total", c.subs.Len(),
			)

		case <-silence.C:
			c.mu.RLock()
			last := c.lastMessageAt
			c.mu.RUnlock()
			if time.Since(last) > c.cfg.SilenceWindow {
				// The connection is open but the provider has gone quiet.
				return ErrSilence
			}

		case msg := <-conn.Messages():
			c.recordMessage(msg.ReceivedAt)
			if err := c.handleFrames(msg); err != nil {
				return err
			}
		}
	}
}

// recordMessage updates the last-message time and the per-minute rate.
func (c *Client) recordMessage(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastMessageAt = at
	c.rateCount++

	if c.rateWindowStart.IsZero() {
		c.rateWindowStart = at
		return
	}
	if elapsed := at.Sub(c.rateWindowStart); elapsed >= time.Minute {
		c.ratePerMin = float64(c.rateCount) / elapsed.Minutes()
		c.rateCount = 0
		c.rateWindowStart = at
	}
}

// handleFrames parses one inbound message and emits its price events.
// Malformed frames are dropped; only session-fatal errors are returned.
func (c *Client) handleFrames(msg TimestampedMessage) error {
	var frames []wireFrame
	if err := json.Unmarshal(msg.Data, &frames); err != nil {
		c.logger.Warn("malformed frame dropped", "error", err)
		c.mu.Lock()
		c.parseErrors++
		c.mu.Unlock()
		return nil
	}

	for _, f := range frames {
		switch f.Type {
		case frameSuccess, frameSubscription:
			c.logger.Debug("control frame", "type", f.Type, "msg", f.Msg)

		case frameError:
			c.logger.Warn("provider error frame", "code", f.Code, "msg", f.Msg)
			if isAuthErrorCode(f.Code) {
				return ErrAuthRejected
			}
			if f.Code == codeConnLimit || f.Code == codeDuplicateConn {
				return fmt.Errorf("provider closed session: %d %s", f.Code, f.Msg)
			}
			// Other codes (unknown symbol, invalid request, internal) are
			// logged and the stream continues.

		case frameTrade, frameQuote, frameBar:
			ev, ok := c.parseDataFrame(f, msg.ReceivedAt)
			if !ok {
				continue
			}
			select {
			case c.events <- ev:
			case <-c.ctx.Done():
				return nil
			}

		default:
			c.logger.Debug("skipping frame type", "type", f.Type)
		}
	}

	return nil
}

// parseDataFrame converts a trade/quote/bar frame into a PriceEvent.
func (c *Client) parseDataFrame(f wireFrame, receivedAt time.Time) (model.PriceEvent, bool) {
	sym, ok := c.subs.Lookup(f.Symbol)
	if !ok {
		c.logger.Debug("frame for unsubscribed symbol", "symbol", f.Symbol)
		return model.PriceEvent{}, false
	}

	var price, volume decimal.Decimal
	switch f.Type {
	case frameTrade:
		price = decimal.NewFromFloat(f.Price)
		volume = decimal.NewFromFloat(f.Size)
	case frameQuote:
		if f.BidPx <= 0 || f.AskPx <= 0 {
			return model.PriceEvent{}, false
		}
		bid := decimal.NewFromFloat(f.BidPx)
		ask := decimal.NewFromFloat(f.AskPx)
		price = bid.Add(ask).Div(decimal.NewFromInt(2))
	case frameBar:
		price = decimal.NewFromFloat(f.Close)
		volume = decimal.NewFromFloat(f.Volume)
	}

	eventTime := receivedAt
	if f.TimeRaw != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.TimeRaw); err == nil {
			eventTime = t
		}
	}

	ev, err := model.NewPriceEvent(
		f.Symbol,
		model.AssetClass(sym.AssetClass),
		sym.Venue,
		price,
		nil, // streaming frames carry no previous close; the router enriches
		volume,
		eventTime,
		model.SourceStreaming,
	)
	if err != nil {
		c.logger.Warn("invalid data frame dropped",
			"symbol", f.Symbol,
			"type", f.Type,
			"error", err,
		)
		c.mu.Lock()
		c.parseErrors++
		c.mu.Unlock()
		return model.PriceEvent{}, false
	}

	return ev, true
}
