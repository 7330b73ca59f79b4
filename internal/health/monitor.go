// Package health aggregates component status into a single snapshot and
// serves it, together with the latest-price and admin endpoints, over
// HTTP.
package health

import (
	"log/slog"
	"time"

	"github.com/mytechsonamy/mytrader-feed/internal/fanout"
	"github.com/mytechsonamy/mytrader-feed/internal/poll"
	"github.com/mytechsonamy/mytrader-feed/internal/router"
	"github.com/mytechsonamy/mytrader-feed/internal/stream"
)

// Overall status values, in decreasing order of health.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// alertFallbackAfter raises an alert when the fallback source has been
// authoritative continuously for this long.
const alertFallbackAfter = 10 * time.Minute

// Snapshot is the aggregate view returned by the health endpoint.
type Snapshot struct {
	Status        string             `json:"status"`
	InstanceID    string             `json:"instance_id"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Router        router.Stats       `json:"router"`
	Streaming     stream.Health      `json:"streaming"`
	Polling       poll.Health        `json:"polling"`
	Fanout        fanout.Stats       `json:"fanout"`
	Buffer        router.BufferStats `json:"buffer"`
	Alerts        []string           `json:"alerts,omitempty"`
}

// Monitor collects status from each component through non-blocking
// callbacks. It holds no state of its own beyond identity, so Snapshot is
// always safe to call regardless of what the pipeline is doing.
type Monitor struct {
	instanceID string
	version    string
	startedAt  time.Time

	routerStats  func() router.Stats
	streamHealth func() stream.Health
	pollHealth   func() poll.Health
	fanoutStats  func() fanout.Stats
	bufferStats  func() router.BufferStats

	logger *slog.Logger
}

// NewMonitor wires a monitor to the pipeline's status callbacks.
func NewMonitor(
	instanceID, version string,
	routerStats func() router.Stats,
	streamHealth func() stream.Health,
	pollHealth func() poll.Health,
	fanoutStats func() fanout.Stats,
	bufferStats func() router.BufferStats,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		instanceID:   instanceID,
		version:      version,
		startedAt:    time.Now(),
		routerStats:  routerStats,
		streamHealth: streamHealth,
		pollHealth:   pollHealth,
		fanoutStats:  fanoutStats,
		bufferStats:  bufferStats,
		logger:       logger.With("component", "health"),
	}
}

// Snapshot assembles the current aggregate status.
func (m *Monitor) Snapshot() Snapshot {
	now := time.Now()

	s := Snapshot{
		InstanceID:    m.instanceID,
		Version:       m.version,
		UptimeSeconds: int64(now.Sub(m.startedAt).Seconds()),
		Router:        m.routerStats(),
		Streaming:     m.streamHealth(),
		Polling:       m.pollHealth(),
		Fanout:        m.fanoutStats(),
		Buffer:        m.bufferStats(),
	}

	s.Status, s.Alerts = m.assess(s, now)
	return s
}

// assess derives the overall status and alert list from a snapshot.
func (m *Monitor) assess(s Snapshot, now time.Time) (string, []string) {
	var alerts []string

	status := StatusHealthy
	switch s.Router.State {
	case router.StateFallbackActive:
		status = StatusDegraded
		if s.Router.TimeInState >= alertFallbackAfter {
			alerts = append(alerts, "fallback source active beyond alert threshold")
		}
	case router.StateBothUnavailable:
		status = StatusUnhealthy
		alerts = append(alerts, "no data source available, serving last-known values")
	}

	if s.Streaming.ConsecutiveFailures > 0 && !s.Streaming.Connected {
		alerts = append(alerts, "streaming client reconnecting")
	}
	if s.Polling.Cycles > 0 && s.Polling.LastCycleFailures > 0 && s.Polling.LastCycleSuccesses == 0 {
		alerts = append(alerts, "last polling cycle failed for every symbol")
		if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	return status, alerts
}
