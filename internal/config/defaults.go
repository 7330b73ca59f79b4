package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAuthTimeout        = 10 * time.Second
	DefaultSilenceWindow      = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMaxSymbols         = 30
	DefaultStreamBufferSize   = 10000

	DefaultPollInterval    = 3 * time.Minute
	DefaultPollTimeout     = 10 * time.Second
	DefaultPollConcurrency = 5
	DefaultPollBufferSize  = 1000

	DefaultStartupGrace      = 15 * time.Second
	DefaultFailureThreshold  = 3
	DefaultRecoveryGrace     = 10 * time.Second
	DefaultEvalInterval      = 1 * time.Second
	DefaultBreakerPct        = 20.0
	DefaultDiscrepancyPct    = 5.0
	DefaultDiscrepancyWindow = 5 * time.Minute
	DefaultRouterBufferSize  = 4096

	DefaultMaxUpdatesPerSec = 20
	DefaultFlushGranularity = 50 * time.Millisecond
	DefaultFanoutBufferSize = 10000

	DefaultRedisPort = 6379
	DefaultLatestTTL = 2 * time.Minute

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultHealthPort = 8080
)

func (c *FeedConfig) applyDefaults() {
	// Streaming defaults
	if c.Streaming.AuthTimeout == 0 {
		c.Streaming.AuthTimeout = DefaultAuthTimeout
	}
	if c.Streaming.SilenceWindow == 0 {
		c.Streaming.SilenceWindow = DefaultSilenceWindow
	}
	if c.Streaming.ReconnectBaseDelay == 0 {
		c.Streaming.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Streaming.ReconnectMaxDelay == 0 {
		c.Streaming.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Streaming.WriteTimeout == 0 {
		c.Streaming.WriteTimeout = DefaultWriteTimeout
	}
	if c.Streaming.MaxSymbols == 0 {
		c.Streaming.MaxSymbols = DefaultMaxSymbols
	}
	if c.Streaming.BufferSize == 0 {
		c.Streaming.BufferSize = DefaultStreamBufferSize
	}

	// Polling defaults
	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.Timeout == 0 {
		c.Polling.Timeout = DefaultPollTimeout
	}
	if c.Polling.Concurrency == 0 {
		c.Polling.Concurrency = DefaultPollConcurrency
	}
	if c.Polling.BufferSize == 0 {
		c.Polling.BufferSize = DefaultPollBufferSize
	}

	// Router defaults
	if c.Router.StartupGrace == 0 {
		c.Router.StartupGrace = DefaultStartupGrace
	}
	if c.Router.FailureThreshold == 0 {
		c.Router.FailureThreshold = DefaultFailureThreshold
	}
	if c.Router.SilenceWindow == 0 {
		c.Router.SilenceWindow = DefaultSilenceWindow
	}
	if c.Router.RecoveryGrace == 0 {
		c.Router.RecoveryGrace = DefaultRecoveryGrace
	}
	if c.Router.EvalInterval == 0 {
		c.Router.EvalInterval = DefaultEvalInterval
	}
	if c.Router.BreakerThresholdPct == 0 {
		c.Router.BreakerThresholdPct = DefaultBreakerPct
	}
	if c.Router.DiscrepancyPct == 0 {
		c.Router.DiscrepancyPct = DefaultDiscrepancyPct
	}
	if c.Router.DiscrepancyWindow == 0 {
		c.Router.DiscrepancyWindow = DefaultDiscrepancyWindow
	}
	if c.Router.BufferSize == 0 {
		c.Router.BufferSize = DefaultRouterBufferSize
	}

	// Fanout defaults
	if c.Fanout.MaxUpdatesPerSec == 0 {
		c.Fanout.MaxUpdatesPerSec = DefaultMaxUpdatesPerSec
	}
	if c.Fanout.FlushGranularity == 0 {
		c.Fanout.FlushGranularity = DefaultFlushGranularity
	}
	if c.Fanout.BufferSize == 0 {
		c.Fanout.BufferSize = DefaultFanoutBufferSize
	}

	// Redis defaults
	if c.Redis.Port == 0 {
		c.Redis.Port = DefaultRedisPort
	}
	if c.Redis.LatestTTL == 0 {
		c.Redis.LatestTTL = DefaultLatestTTL
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
