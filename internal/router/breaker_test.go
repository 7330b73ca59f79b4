package router

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBreakerAllow(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		last      string
		next      string
		want      bool
	}{
		{"no prior price always allows", 20, "0", "100", true},
		{"small move allows", 20, "100", "110", true},
		{"move at threshold allows", 20, "100", "120", true},
		{"move above threshold trips", 20, "100", "121", false},
		{"drop above threshold trips", 20, "100", "79", false},
		{"drop at threshold allows", 20, "100", "80", true},
		{"tight threshold", 1, "50000", "50600", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewCircuitBreaker(tt.threshold)
			last := decimal.RequireFromString(tt.last)
			next := decimal.RequireFromString(tt.next)
			if got := b.Allow("BTCUSD", last, next); got != tt.want {
				t.Errorf("Allow(%s -> %s) = %v, want %v", tt.last, tt.next, got, tt.want)
			}
		})
	}
}

func TestBreakerTripCounts(t *testing.T) {
	b := NewCircuitBreaker(10)

	hundred := decimal.NewFromInt(100)
	double := decimal.NewFromInt(200)

	b.Allow("AAPL", hundred, double)
	b.Allow("AAPL", hundred, double)
	b.Allow("THYAO", hundred, double)
	b.Allow("MSFT", hundred, decimal.NewFromInt(105)) // plausible

	if got := b.TotalTrips(); got != 3 {
		t.Errorf("TotalTrips() = %d, want 3", got)
	}

	trips := b.Trips()
	if trips["AAPL"] != 2 {
		t.Errorf("trips[AAPL] = %d, want 2", trips["AAPL"])
	}
	if trips["THYAO"] != 1 {
		t.Errorf("trips[THYAO] = %d, want 1", trips["THYAO"])
	}
	if _, ok := trips["MSFT"]; ok {
		t.Error("plausible move should not record a trip")
	}

	// Returned map is a copy.
	trips["AAPL"] = 99
	if b.Trips()["AAPL"] != 2 {
		t.Error("Trips() must return a copy")
	}
}
