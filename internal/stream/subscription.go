package stream

import (
	"sort"
	"sync"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
)

var tierWeight = map[config.SymbolTier]int{
	config.TierPosition:  0,
	config.TierWatchlist: 1,
	config.TierPopular:   2,
}

// Prioritize orders symbols by tier (positions first, then watchlist, then
// popularity rank) and truncates to the provider's concurrent symbol cap.
func Prioritize(symbols []config.SymbolConfig, max int) []config.SymbolConfig {
	out := make([]config.SymbolConfig, len(symbols))
	copy(out, symbols)

	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := tierWeight[out[i].Tier], tierWeight[out[j].Tier]
		if wi != wj {
			return wi < wj
		}
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Symbol < out[j].Symbol
	})

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// SubscriptionSet is the set of symbols currently subscribed on the
// streaming connection, bounded by the provider cap.
type SubscriptionSet struct {
	mu      sync.RWMutex
	max     int
	symbols map[string]config.SymbolConfig
}

// NewSubscriptionSet creates an empty set with the given cap.
func NewSubscriptionSet(max int) *SubscriptionSet {
	return &SubscriptionSet{
		max:     max,
		symbols: make(map[string]config.SymbolConfig),
	}
}

// Apply replaces the set with the prioritized, capped view of universe and
// returns the incremental subscribe/unsubscribe lists. The caller issues
// only those deltas on the wire; the connection is never rebuilt.
func (s *SubscriptionSet) Apply(universe []config.SymbolConfig) (added, removed []string) {
	next := Prioritize(universe, s.max)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextSet := make(map[string]config.SymbolConfig, len(next))
	for _, sym := range next {
		nextSet[sym.Symbol] = sym
		if _, ok := s.symbols[sym.Symbol]; !ok {
			added = append(added, sym.Symbol)
		}
	}
	for sym := range s.symbols {
		if _, ok := nextSet[sym]; !ok {
			removed = append(removed, sym)
		}
	}

	s.symbols = nextSet
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Symbols returns the currently subscribed symbols, sorted.
func (s *SubscriptionSet) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the symbol's configuration, used to stamp asset class and
// venue onto parsed events.
func (s *SubscriptionSet) Lookup(symbol string) (config.SymbolConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sym, ok := s.symbols[symbol]
	return sym, ok
}

// Len returns the number of subscribed symbols.
func (s *SubscriptionSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}
