package fanout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mytechsonamy/mytrader-feed/internal/model"
)

// staleAfter marks messages whose upstream timestamp is older than this.
// Consumers render stale prices greyed out instead of hiding them.
const staleAfter = 5 * time.Minute

// Message is the wire format published to subscriber groups.
type Message struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	AssetClass string `json:"assetClass"`
	Venue      string `json:"venue,omitempty"`

	Price         decimal.Decimal  `json:"price"`
	PreviousClose *decimal.Decimal `json:"previousClose,omitempty"`
	ChangeAbs     decimal.Decimal  `json:"changeAbs"`
	ChangePct     decimal.Decimal  `json:"changePercent"`
	Volume        decimal.Decimal  `json:"volume"`

	EventTime  time.Time `json:"eventTime"`
	ReceivedAt time.Time `json:"receivedAt"`

	Source  string `json:"source"`
	Quality int    `json:"quality"`
	Stale   bool   `json:"stale"`
}

// NewMessage converts a forwarded price event into its published form,
// assigning a fresh message ID.
func NewMessage(ev model.PriceEvent, now time.Time) Message {
	return Message{
		ID:            uuid.New().String(),
		Symbol:        ev.Symbol,
		AssetClass:    string(ev.AssetClass),
		Venue:         ev.Venue,
		Price:         ev.Price,
		PreviousClose: ev.PreviousClose,
		ChangeAbs:     ev.ChangeAbs,
		ChangePct:     ev.ChangePct,
		Volume:        ev.Volume,
		EventTime:     ev.EventTime,
		ReceivedAt:    ev.ReceivedAt,
		Source:        string(ev.Source),
		Quality:       ev.Quality,
		Stale:         ev.Age(now) > staleAfter,
	}
}

// Groups returns the subscriber groups the message is delivered to: the
// per-symbol group and the asset-class-wide group.
func (m Message) Groups() []string {
	return []string{
		fmt.Sprintf("%s_%s", m.AssetClass, m.Symbol),
		m.AssetClass,
	}
}
