package config

import (
	"errors"
	"fmt"
)

var validAssetClasses = map[string]struct{}{
	"CRYPTO": {},
	"STOCK":  {},
	"FOREX":  {},
	"INDEX":  {},
}

// Validate checks that all required fields are set and values are valid.
// Configuration errors are the only fatal startup errors: they must be
// caught here before any connection attempt.
func (c *FeedConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Streaming.URL == "" {
		return errors.New("streaming.url is required")
	}
	if c.Streaming.Key == "" {
		return errors.New("streaming.key is required")
	}
	if c.Streaming.Secret == "" {
		return errors.New("streaming.secret is required")
	}
	if c.Streaming.MaxSymbols < 1 {
		return errors.New("streaming.max_symbols must be >= 1")
	}

	if c.Polling.BaseURL == "" {
		return errors.New("polling.base_url is required")
	}
	if c.Polling.Concurrency < 1 {
		return errors.New("polling.concurrency must be >= 1")
	}

	if c.Router.FailureThreshold < 1 {
		return errors.New("router.failure_threshold must be >= 1")
	}
	if c.Router.BreakerThresholdPct <= 0 {
		return errors.New("router.breaker_threshold_pct must be > 0")
	}
	if c.Router.DiscrepancyPct <= 0 {
		return errors.New("router.discrepancy_threshold_pct must be > 0")
	}

	if c.Fanout.MaxUpdatesPerSec < 1 {
		return errors.New("fanout.max_updates_per_sec must be >= 1")
	}

	if c.Redis.Host == "" {
		return errors.New("redis.host is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	for i, s := range c.Symbols {
		if err := s.validate(); err != nil {
			return fmt.Errorf("symbols[%d]: %w", i, err)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func (s SymbolConfig) validate() error {
	if s.Symbol == "" {
		return errors.New("symbol is required")
	}
	if _, ok := validAssetClasses[s.AssetClass]; !ok {
		return fmt.Errorf("asset_class %q is not one of CRYPTO, STOCK, FOREX, INDEX", s.AssetClass)
	}
	switch s.Tier {
	case TierPosition, TierWatchlist, TierPopular:
	case "":
		return errors.New("tier is required")
	default:
		return fmt.Errorf("tier %q is not one of position, watchlist, popular", s.Tier)
	}
	return nil
}
