// Package router selects which ingestion source is authoritative and
// forwards its events downstream.
//
// A single goroutine drains both ingestion channels and owns every state
// transition, so the failover machine never races. The router also guards
// data quality: a per-symbol circuit breaker suppresses implausible ticks,
// and cross-source price disagreement lowers the quality score without
// ever blocking the stream.
package router
