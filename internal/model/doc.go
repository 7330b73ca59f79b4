// Package model defines shared data types used across the feed pipeline.
//
// Conventions:
//   - Prices and volumes: decimal.Decimal (never float64 for money)
//   - Timestamps: time.Time; EventTime is upstream-reported, ReceivedAt is local
//   - Quality: int 0-100, 100 = live streaming data with no warnings
package model
