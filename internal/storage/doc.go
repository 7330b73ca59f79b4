// Package storage persists polled quotes as the canonical historical record.
//
// Only the polling source writes here: it runs every cycle regardless of
// which source is currently routed downstream, so the history has a steady
// cadence even while streaming is healthy.
package storage
