package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// H2HMarket is the head-to-head market key used by the bookmaker feed
const H2HMarket = "h2h"

// DrawOutcomeName is the outcome name bookmakers use for a draw
const DrawOutcomeName = "Draw"

// RawEvent is one fixture as delivered by the bookmaker feed
type RawEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title,omitempty"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []RawBookmaker `json:"bookmakers"`
}

// RawBookmaker is one bookmaker's markets for a fixture
type RawBookmaker struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate time.Time   `json:"last_update"`
	Markets    []RawMarket `json:"markets"`
}

// RawMarket is one market offered by a bookmaker
type RawMarket struct {
	Key      string       `json:"key"`
	Outcomes []RawOutcome `json:"outcomes"`
}

// RawOutcome is a price for one named outcome
type RawOutcome struct {
	Name  string      `json:"name"`
	Price QuotedPrice `json:"price"`
}

// QuotedPrice decodes a price sent as a JSON number or numeric string.
// Unparseable values decode without error and report !Valid, so one bad
// quote cannot fail a whole feed.
type QuotedPrice struct {
	Value decimal.Decimal
	Valid bool
	Raw   string
}

// NewQuotedPrice wraps a valid decimal price
func NewQuotedPrice(d decimal.Decimal) QuotedPrice {
	return QuotedPrice{Value: d, Valid: true, Raw: d.String()}
}

// PriceFromFloat is a convenience for building feeds in code
func PriceFromFloat(f float64) QuotedPrice {
	return NewQuotedPrice(decimal.NewFromFloat(f))
}

// UnmarshalJSON implements json.Unmarshaler
func (p *QuotedPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	}
	raw = strings.TrimSpace(raw)

	*p = QuotedPrice{Raw: raw}
	if raw == "" || raw == "null" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	p.Value = d
	p.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler
func (p QuotedPrice) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		if p.Raw == "" {
			return []byte("null"), nil
		}
		return json.Marshal(p.Raw)
	}
	return []byte(p.Value.String()), nil
}

// MarketQuote holds the best asks of a binary market for one outcome
type MarketQuote struct {
	YesAsk decimal.NullDecimal `json:"yes_ask"`
	NoAsk  decimal.NullDecimal `json:"no_ask"`
}

// QuoteKey identifies an outcome of an event in the second source
type QuoteKey struct {
	EventID string
	Outcome Outcome
}

// MarketSnapshot is every second-source quote fetched in one pass.
// A key without an entry means the outcome has no market data.
type MarketSnapshot struct {
	Source    string
	FetchedAt time.Time
	Quotes    map[QuoteKey]MarketQuote
}

// Lookup returns the quote for an event outcome
func (s MarketSnapshot) Lookup(eventID string, o Outcome) (MarketQuote, bool) {
	if s.Quotes == nil {
		return MarketQuote{}, false
	}
	q, ok := s.Quotes[QuoteKey{EventID: eventID, Outcome: o}]
	return q, ok
}

// KafkaOddsFeedMessage carries a raw bookmaker feed over Kafka
type KafkaOddsFeedMessage struct {
	Events    []RawEvent `json:"events"`
	FetchedAt time.Time  `json:"fetched_at"`
	BatchID   string     `json:"batch_id"`
}

// OpportunityKind distinguishes three-way from binary arbitrage
type OpportunityKind string

const (
	OpportunityThreeWay OpportunityKind = "three_way"
	OpportunityTwoWay   OpportunityKind = "two_way"
)

// OpportunityMessage is published for every detected arbitrage
type OpportunityMessage struct {
	CycleID    uuid.UUID                  `json:"cycle_id"`
	EventID    string                     `json:"event_id"`
	Kind       OpportunityKind            `json:"kind"`
	Outcome    *Outcome                   `json:"outcome,omitempty"` // two-way only
	HomeTeam   string                     `json:"home_team"`
	AwayTeam   string                     `json:"away_team"`
	Date       string                     `json:"date"`
	Prices     map[string]decimal.Decimal `json:"prices"`
	Stakes     map[string]decimal.Decimal `json:"stakes"`
	ReturnPct  decimal.Decimal            `json:"return_pct"`
	DetectedAt time.Time                  `json:"detected_at"`
}
