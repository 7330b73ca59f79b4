package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mytechsonamy/mytrader-feed/pkg/retry"
)

const quotePath = "/v7/finance/quote"

// Client errors.
var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrRateLimited    = errors.New("rate limited by provider")
)

// Quote is one provider response for a symbol. PreviousClose is the
// provider's own reference value for the prior trading day.
type Quote struct {
	Symbol        string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Volume        decimal.Decimal
	Time          time.Time
}

// Client fetches quotes from the request/response provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryConf  retry.Config
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retryConf = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "poll_client")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a quote client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryConf: retry.DefaultConfig(),
		logger:    slog.Default().With("component", "poll_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// quoteResponse mirrors the provider's wire format.
type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol        string  `json:"symbol"`
			Price         float64 `json:"regularMarketPrice"`
			PreviousClose float64 `json:"regularMarketPreviousClose"`
			Volume        float64 `json:"regularMarketVolume"`
			Time          int64   `json:"regularMarketTime"` // unix seconds
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuote fetches the current quote for one symbol, retrying transient
// failures per the client's retry policy.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var quote Quote

	err := retry.Do(ctx, c.retryConf, func(ctx context.Context) error {
		u, err := url.Parse(c.baseURL + quotePath)
		if err != nil {
			return fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		q.Set("symbols", symbol)
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("request failed, will retry", "symbol", symbol, "error", err)
			return retry.Mark(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by provider", "symbol", symbol)
			return retry.Mark(ErrRateLimited)
		}
		if resp.StatusCode >= 500 {
			return retry.Mark(fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}

		var wire quoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if e := wire.QuoteResponse.Error; e != nil {
			return fmt.Errorf("provider error %s: %s", e.Code, e.Description)
		}
		if len(wire.QuoteResponse.Result) == 0 {
			return ErrSymbolNotFound
		}

		r := wire.QuoteResponse.Result[0]
		quote = Quote{
			Symbol:        r.Symbol,
			Price:         decimal.NewFromFloat(r.Price),
			PreviousClose: decimal.NewFromFloat(r.PreviousClose),
			Volume:        decimal.NewFromFloat(r.Volume),
			Time:          time.Unix(r.Time, 0),
		}
		return nil
	})

	return quote, err
}
