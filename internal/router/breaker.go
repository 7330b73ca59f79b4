package router

import "github.com/shopspring/decimal"

// CircuitBreaker suppresses single events whose implied move versus the
// last forwarded price exceeds a configured percentage. It protects the
// downstream from corrupt ticks without a human in the loop.
//
// Not safe for concurrent use; owned by the router loop.
type CircuitBreaker struct {
	threshold decimal.Decimal // percent
	trips     map[string]int64
}

// NewCircuitBreaker creates a breaker tripping above thresholdPct percent.
func NewCircuitBreaker(thresholdPct float64) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: decimal.NewFromFloat(thresholdPct),
		trips:     make(map[string]int64),
	}
}

// Allow reports whether the move from last to next is plausible for the
// symbol. A zero last price (nothing forwarded yet) always allows. When the
// move exceeds the threshold the breaker trips and records it.
func (b *CircuitBreaker) Allow(symbol string, last, next decimal.Decimal) bool {
	if last.IsZero() {
		return true
	}

	movePct := next.Sub(last).Abs().Div(last).Mul(decimal.NewFromInt(100))
	if movePct.GreaterThan(b.threshold) {
		b.trips[symbol]++
		return false
	}
	return true
}

// Trips returns a copy of the per-symbol trip counts.
func (b *CircuitBreaker) Trips() map[string]int64 {
	out := make(map[string]int64, len(b.trips))
	for sym, n := range b.trips {
		out[sym] = n
	}
	return out
}

// TotalTrips returns the sum of all trip counts.
func (b *CircuitBreaker) TotalTrips() int64 {
	var total int64
	for _, n := range b.trips {
		total += n
	}
	return total
}
