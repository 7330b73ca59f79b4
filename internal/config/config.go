package config

import "time"

// FeedConfig is the root configuration for a feed instance.
type FeedConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Streaming StreamingConfig `yaml:"streaming"`
	Polling   PollingConfig   `yaml:"polling"`
	Router    RouterConfig    `yaml:"router"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DBConfig        `yaml:"database"`
	Health    HealthConfig    `yaml:"health"`
	Symbols   []SymbolConfig  `yaml:"symbols"`
}

// InstanceConfig identifies this feed process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamingConfig holds the websocket provider settings.
type StreamingConfig struct {
	URL                string        `yaml:"url"`
	Key                string        `yaml:"key"`
	Secret             string        `yaml:"secret"`
	AuthTimeout        time.Duration `yaml:"auth_timeout"`
	SilenceWindow      time.Duration `yaml:"silence_window"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	MaxSymbols         int           `yaml:"max_symbols"` // provider cap on concurrent subscriptions
	BufferSize         int           `yaml:"buffer_size"`
}

// PollingConfig holds the request/response provider settings.
type PollingConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	BufferSize  int           `yaml:"buffer_size"`
}

// RouterConfig holds source selection and data quality settings.
type RouterConfig struct {
	StartupGrace        time.Duration `yaml:"startup_grace"`        // probing window before first state resolution
	FailureThreshold    int           `yaml:"failure_threshold"`    // consecutive streaming failures before failover
	SilenceWindow       time.Duration `yaml:"silence_window"`       // max age of last streaming event before failover
	RecoveryGrace       time.Duration `yaml:"recovery_grace"`       // hold-down before switching back to streaming
	EvalInterval        time.Duration `yaml:"eval_interval"`        // how often transitions are evaluated
	BreakerThresholdPct float64       `yaml:"breaker_threshold_pct"`   // single-tick move that trips the breaker
	DiscrepancyPct      float64       `yaml:"discrepancy_threshold_pct"` // cross-source delta that triggers a warning
	DiscrepancyWindow   time.Duration `yaml:"discrepancy_window"`   // both sources must have reported within this window
	BufferSize          int           `yaml:"buffer_size"`          // initial capacity of the forwarded-event buffer
}

// FanoutConfig holds per-symbol throttling settings.
type FanoutConfig struct {
	MaxUpdatesPerSec int           `yaml:"max_updates_per_sec"`
	FlushGranularity time.Duration `yaml:"flush_granularity"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RedisConfig holds the pub/sub transport settings.
type RedisConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	LatestTTL time.Duration `yaml:"latest_ttl"` // TTL on cached latest values
}

// DBConfig holds the quote-history database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the status endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// SymbolTier orders symbols when the universe exceeds the provider cap.
type SymbolTier string

const (
	TierPosition  SymbolTier = "position"  // user holds the asset
	TierWatchlist SymbolTier = "watchlist" // user watches the asset
	TierPopular   SymbolTier = "popular"   // ranked by volume/popularity
)

// SymbolConfig describes one symbol in the universe.
type SymbolConfig struct {
	Symbol     string     `yaml:"symbol"`
	AssetClass string     `yaml:"asset_class"`
	Venue      string     `yaml:"venue"`
	Tier       SymbolTier `yaml:"tier"`
	Rank       int        `yaml:"rank"` // lower is higher priority within a tier
}
