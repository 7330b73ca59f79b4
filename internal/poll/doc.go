// Package poll implements the polling ingestion client.
//
// The poller:
//   - Fetches quotes for the symbol universe on a fixed interval
//   - Takes previous close from the provider's own field, never derived locally
//   - Isolates per-symbol failures within a cycle
//   - Persists every successful quote as the canonical historical record
//   - Emits the same normalized events as the streaming client, tagged fallback
package poll
