// Package redispub delivers fanout messages over Redis pub/sub and keeps a
// short-lived cache of the latest payload per symbol group for late
// joiners.
package redispub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
)

const (
	channelPrefix = "prices:"
	latestPrefix  = "latest:"
)

// Client publishes to Redis channels named after subscriber groups.
type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a client from configuration. Connectivity is verified with
// Ping, not here.
func New(cfg config.RedisConfig, logger *slog.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{
		rdb:    rdb,
		ttl:    cfg.LatestTTL,
		logger: logger.With("component", "redispub"),
	}
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Publish sends the payload to the group's channel. Symbol-level groups
// additionally cache the payload under a TTL key; a cache failure is
// logged but does not fail the publish.
func (c *Client) Publish(ctx context.Context, group string, payload []byte) error {
	if err := c.rdb.Publish(ctx, ChannelFor(group), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", group, err)
	}

	if isSymbolGroup(group) {
		if err := c.rdb.Set(ctx, LatestKeyFor(group), payload, c.ttl).Err(); err != nil {
			c.logger.Warn("cache latest payload", "group", group, "error", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ChannelFor maps a subscriber group to its Redis channel.
func ChannelFor(group string) string {
	return channelPrefix + group
}

// LatestKeyFor maps a subscriber group to its latest-value cache key.
func LatestKeyFor(group string) string {
	return latestPrefix + group
}

// isSymbolGroup distinguishes per-symbol groups (CRYPTO_BTCUSD) from
// asset-class groups (CRYPTO).
func isSymbolGroup(group string) bool {
	return strings.ContainsRune(group, '_')
}
