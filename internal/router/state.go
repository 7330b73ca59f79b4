package router

import "time"

// State identifies which source is currently authoritative.
type State string

const (
	// StateProbing is the startup state, before the first resolution.
	StateProbing State = "PROBING"

	// StatePrimaryActive forwards streaming events only.
	StatePrimaryActive State = "PRIMARY_ACTIVE"

	// StateFallbackActive forwards polling events only.
	StateFallbackActive State = "FALLBACK_ACTIVE"

	// StateBothUnavailable forwards nothing and serves last-known values.
	StateBothUnavailable State = "BOTH_UNAVAILABLE"
)

// SourceStatus is the router's view of one ingestion client's liveness.
// Supplied as a callback so tests can drive transitions without a network.
type SourceStatus struct {
	Healthy             bool
	ConsecutiveFailures int
}

// StatusFunc reports a source's current status. Must not block.
type StatusFunc func() SourceStatus

// Stats is a read-only snapshot of the router's counters, consumed by the
// health monitor. The router's loop is the only writer.
type Stats struct {
	State                State            `json:"state"`
	LastTransitionAt     time.Time        `json:"last_transition_at"`
	TimeInState          time.Duration    `json:"time_in_state"`
	Transitions          int64            `json:"transitions"`
	FallbackActivations  int64            `json:"fallback_activations"`
	FallbackDuration     time.Duration    `json:"fallback_duration"` // cumulative
	LastStreamingEventAt time.Time        `json:"last_streaming_event_at"`
	LastPollingEventAt   time.Time        `json:"last_polling_event_at"`
	Forwarded            int64            `json:"forwarded"`
	SuppressedByBreaker  int64            `json:"suppressed_by_breaker"`
	DiscrepancyWarnings  int64            `json:"discrepancy_warnings"`
	BreakerTrips         map[string]int64 `json:"breaker_trips"`
}
