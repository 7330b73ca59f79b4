package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors for inbound price data.
var (
	ErrNonPositivePrice = errors.New("price must be positive")
	ErrNegativeVolume   = errors.New("volume must not be negative")
	ErrFutureTimestamp  = errors.New("event timestamp is in the future")
)

// ClockSkewTolerance is how far ahead of the local clock an upstream
// event timestamp may be before it is rejected as invalid.
const ClockSkewTolerance = 5 * time.Second

// AssetClass categorizes a symbol's market.
type AssetClass string

const (
	AssetCrypto AssetClass = "CRYPTO"
	AssetStock  AssetClass = "STOCK"
	AssetForex  AssetClass = "FOREX"
	AssetIndex  AssetClass = "INDEX"
)

// Source identifies which upstream produced a price event.
type Source string

const (
	SourceStreaming       Source = "STREAMING"
	SourcePollingFallback Source = "POLLING_FALLBACK"
)

// Quality score baselines per source. Cross-source disagreement reduces
// the score further (see QualityDiscrepancyPenalty).
const (
	QualityStreaming          = 100
	QualityFallback           = 70
	QualityDiscrepancyPenalty = 25
)

// PriceEvent is a single normalized price observation. Immutable once
// constructed; derived copies are made with WithSource / WithQualityPenalty.
type PriceEvent struct {
	Symbol     string
	AssetClass AssetClass
	Venue      string

	Price         decimal.Decimal
	PreviousClose *decimal.Decimal // nil when the provider did not report one
	ChangeAbs     decimal.Decimal
	ChangePct     decimal.Decimal
	Volume        decimal.Decimal

	EventTime  time.Time
	ReceivedAt time.Time

	Source  Source
	Quality int
}

// NewPriceEvent validates raw upstream values and builds a normalized event.
// ChangeAbs/ChangePct are computed from previousClose when it is known and
// non-zero, otherwise both are zero.
func NewPriceEvent(
	symbol string,
	assetClass AssetClass,
	venue string,
	price decimal.Decimal,
	previousClose *decimal.Decimal,
	volume decimal.Decimal,
	eventTime time.Time,
	source Source,
) (PriceEvent, error) {
	now := time.Now()

	if !price.IsPositive() {
		return PriceEvent{}, ErrNonPositivePrice
	}
	if volume.IsNegative() {
		return PriceEvent{}, ErrNegativeVolume
	}
	if eventTime.After(now.Add(ClockSkewTolerance)) {
		return PriceEvent{}, ErrFutureTimestamp
	}

	ev := PriceEvent{
		Symbol:     symbol,
		AssetClass: assetClass,
		Venue:      venue,
		Price:      price,
		Volume:     volume,
		EventTime:  eventTime,
		ReceivedAt: now,
		Source:     source,
		Quality:    QualityStreaming,
	}
	if source == SourcePollingFallback {
		ev.Quality = QualityFallback
	}

	if previousClose != nil && !previousClose.IsZero() {
		pc := *previousClose
		ev.PreviousClose = &pc
		ev.ChangeAbs = price.Sub(pc)
		ev.ChangePct = ev.ChangeAbs.Div(pc).Mul(decimal.NewFromInt(100))
	}

	return ev, nil
}

// WithSource returns a copy tagged with the given source and that source's
// baseline quality score.
func (e PriceEvent) WithSource(source Source) PriceEvent {
	e.Source = source
	if source == SourcePollingFallback {
		e.Quality = QualityFallback
	} else {
		e.Quality = QualityStreaming
	}
	return e
}

// WithPreviousClose returns a copy with the previous close set and the
// change fields recomputed. Used by the router to enrich streaming events
// with the provider-authoritative close learned from the polling source.
func (e PriceEvent) WithPreviousClose(previousClose decimal.Decimal) PriceEvent {
	if previousClose.IsZero() {
		return e
	}
	pc := previousClose
	e.PreviousClose = &pc
	e.ChangeAbs = e.Price.Sub(pc)
	e.ChangePct = e.ChangeAbs.Div(pc).Mul(decimal.NewFromInt(100))
	return e
}

// WithQualityPenalty returns a copy with the quality score reduced by n,
// floored at zero.
func (e PriceEvent) WithQualityPenalty(n int) PriceEvent {
	e.Quality -= n
	if e.Quality < 0 {
		e.Quality = 0
	}
	return e
}

// Age reports how old the event is relative to now, based on the
// upstream-reported timestamp.
func (e PriceEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.EventTime)
}
