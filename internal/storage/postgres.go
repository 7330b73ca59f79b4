package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

// QuoteStore persists polled price events.
type QuoteStore interface {
	// SaveQuotes writes one poll cycle's successful results.
	SaveQuotes(ctx context.Context, events []model.PriceEvent) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close()
}

// PostgresStore implements QuoteStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect creates the pool and verifies connectivity.
func Connect(ctx context.Context, cfg config.DBConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// SaveQuotes inserts a poll cycle's results in one batch. Duplicate
// (symbol, event_time) rows from overlapping cycles are skipped.
func (s *PostgresStore) SaveQuotes(ctx context.Context, events []model.PriceEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		var prevClose interface{}
		if ev.PreviousClose != nil {
			prevClose = *ev.PreviousClose
		}
		batch.Queue(`
			INSERT INTO quote_history (symbol, asset_class, venue, price, previous_close, change_abs, change_pct, volume, event_time, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (symbol, event_time) DO NOTHING
		`, ev.Symbol, string(ev.AssetClass), ev.Venue, ev.Price, prevClose, ev.ChangeAbs, ev.ChangePct, ev.Volume, ev.EventTime, ev.ReceivedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
	}

	return nil
}

// Ping verifies the connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
