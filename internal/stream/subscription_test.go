package stream

import (
	"reflect"
	"testing"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
)

func sym(name, class string, tier config.SymbolTier, rank int) config.SymbolConfig {
	return config.SymbolConfig{Symbol: name, AssetClass: class, Venue: "X", Tier: tier, Rank: rank}
}

func TestPrioritize_TierOrderAndCap(t *testing.T) {
	universe := []config.SymbolConfig{
		sym("ETHUSDT", "CRYPTO", config.TierPopular, 2),
		sym("AAPL", "STOCK", config.TierWatchlist, 1),
		sym("GARAN", "STOCK", config.TierPosition, 5),
		sym("BTCUSDT", "CRYPTO", config.TierPopular, 1),
		sym("THYAO", "STOCK", config.TierPosition, 1),
	}

	got := Prioritize(universe, 3)

	want := []string{"THYAO", "GARAN", "AAPL"}
	var names []string
	for _, s := range got {
		names = append(names, s.Symbol)
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Prioritize order = %v, want %v", names, want)
	}
}

func TestPrioritize_NoCap(t *testing.T) {
	universe := []config.SymbolConfig{
		sym("A", "STOCK", config.TierPopular, 1),
		sym("B", "STOCK", config.TierPosition, 1),
	}

	got := Prioritize(universe, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Symbol != "B" {
		t.Errorf("got[0] = %s, want B", got[0].Symbol)
	}
}

func TestSubscriptionSet_ApplyDiff(t *testing.T) {
	set := NewSubscriptionSet(10)

	added, removed := set.Apply([]config.SymbolConfig{
		sym("AAPL", "STOCK", config.TierPosition, 1),
		sym("BTCUSDT", "CRYPTO", config.TierWatchlist, 1),
	})
	if !reflect.DeepEqual(added, []string{"AAPL", "BTCUSDT"}) {
		t.Errorf("added = %v, want [AAPL BTCUSDT]", added)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want empty", removed)
	}

	// Replace BTCUSDT with GARAN; AAPL stays.
	added, removed = set.Apply([]config.SymbolConfig{
		sym("AAPL", "STOCK", config.TierPosition, 1),
		sym("GARAN", "STOCK", config.TierWatchlist, 1),
	})
	if !reflect.DeepEqual(added, []string{"GARAN"}) {
		t.Errorf("added = %v, want [GARAN]", added)
	}
	if !reflect.DeepEqual(removed, []string{"BTCUSDT"}) {
		t.Errorf("removed = %v, want [BTCUSDT]", removed)
	}
}

func TestSubscriptionSet_CapEviction(t *testing.T) {
	set := NewSubscriptionSet(2)

	set.Apply([]config.SymbolConfig{
		sym("AAPL", "STOCK", config.TierPosition, 1),
		sym("MSFT", "STOCK", config.TierPosition, 2),
	})

	// A new position outranks MSFT; the cap forces MSFT out.
	added, removed := set.Apply([]config.SymbolConfig{
		sym("AAPL", "STOCK", config.TierPosition, 1),
		sym("GARAN", "STOCK", config.TierPosition, 0),
		sym("MSFT", "STOCK", config.TierPosition, 2),
	})
	if !reflect.DeepEqual(added, []string{"GARAN"}) {
		t.Errorf("added = %v, want [GARAN]", added)
	}
	if !reflect.DeepEqual(removed, []string{"MSFT"}) {
		t.Errorf("removed = %v, want [MSFT]", removed)
	}
}

func TestSubscriptionSet_Lookup(t *testing.T) {
	set := NewSubscriptionSet(10)
	set.Apply([]config.SymbolConfig{sym("AAPL", "STOCK", config.TierPosition, 1)})

	s, ok := set.Lookup("AAPL")
	if !ok {
		t.Fatal("Lookup(AAPL) not found")
	}
	if s.AssetClass != "STOCK" {
		t.Errorf("AssetClass = %s, want STOCK", s.AssetClass)
	}

	if _, ok := set.Lookup("TSLA"); ok {
		t.Error("Lookup(TSLA) found, want missing")
	}
}
