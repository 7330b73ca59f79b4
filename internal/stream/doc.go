// Package stream implements the streaming ingestion client.
//
// The client:
//   - Maintains one persistent websocket connection to the low-latency provider
//   - Authenticates with key/secret and subscribes to trade/quote/bar channels
//   - Parses inbound frames into normalized price events
//   - Reconnects with exponential backoff and jitter, indefinitely
//   - Treats message silence beyond a configured window as connection failure
package stream
