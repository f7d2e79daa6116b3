package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome identifies one of the three mutually exclusive results of a fixture
type Outcome int

const (
	OutcomeHome Outcome = iota
	OutcomeDraw
	OutcomeAway
)

// AllOutcomes lists every outcome in display order
var AllOutcomes = [3]Outcome{OutcomeHome, OutcomeDraw, OutcomeAway}

func (o Outcome) String() string {
	switch o {
	case OutcomeHome:
		return "home"
	case OutcomeDraw:
		return "draw"
	case OutcomeAway:
		return "away"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome as its name, which also makes it usable as a JSON map key
func (o Outcome) MarshalText() ([]byte, error) {
	switch o {
	case OutcomeHome, OutcomeDraw, OutcomeAway:
		return []byte(o.String()), nil
	default:
		return nil, fmt.Errorf("unknown outcome %d", int(o))
	}
}

// UnmarshalText decodes an outcome name
func (o *Outcome) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "home":
		*o = OutcomeHome
	case "draw":
		*o = OutcomeDraw
	case "away":
		*o = OutcomeAway
	default:
		return fmt.Errorf("unknown outcome %q", string(text))
	}
	return nil
}

// OutcomeQuote is the best price seen for one outcome and the sources offering it
type OutcomeQuote struct {
	Price         decimal.Decimal     `json:"price"`
	SourceIDs     []string            `json:"source_ids"`
	ConversePrice decimal.NullDecimal `json:"converse_price"`
}

// NewOutcomeQuote starts a quote from a single source
func NewOutcomeQuote(price decimal.Decimal, source string) OutcomeQuote {
	return OutcomeQuote{Price: price, SourceIDs: []string{source}}
}

// IsZero reports whether no source has offered a price yet
func (q OutcomeQuote) IsZero() bool {
	return len(q.SourceIDs) == 0
}

// Offer applies the best-price rule and returns the resulting quote.
// A strictly higher price replaces the provenance, an equal price joins it,
// a lower price is ignored. The receiver is never modified.
func (q OutcomeQuote) Offer(price decimal.Decimal, source string) OutcomeQuote {
	if q.IsZero() || price.GreaterThan(q.Price) {
		return OutcomeQuote{
			Price:         price,
			SourceIDs:     []string{source},
			ConversePrice: q.ConversePrice,
		}
	}
	if !price.Equal(q.Price) {
		return q.Clone()
	}

	out := q.Clone()
	for _, id := range out.SourceIDs {
		if id == source {
			return out
		}
	}
	out.SourceIDs = append(out.SourceIDs, source)
	return out
}

// WithConverse returns a copy carrying the price for betting against the outcome
func (q OutcomeQuote) WithConverse(price decimal.Decimal) OutcomeQuote {
	out := q.Clone()
	out.ConversePrice = decimal.NewNullDecimal(price)
	return out
}

// Clone returns a copy that shares no memory with q
func (q OutcomeQuote) Clone() OutcomeQuote {
	out := q
	out.SourceIDs = append([]string(nil), q.SourceIDs...)
	return out
}

// EventRecord holds the best quote per outcome for one fixture
type EventRecord struct {
	ID           string       `json:"id"`
	Date         string       `json:"date"` // YYYY-MM-DD
	CommenceTime time.Time    `json:"commence_time"`
	HomeTeam     string       `json:"home_team"`
	AwayTeam     string       `json:"away_team"`
	Home         OutcomeQuote `json:"home"`
	Draw         OutcomeQuote `json:"draw"`
	Away         OutcomeQuote `json:"away"`
}

// Quote returns the quote for the given outcome
func (e EventRecord) Quote(o Outcome) OutcomeQuote {
	switch o {
	case OutcomeHome:
		return e.Home
	case OutcomeDraw:
		return e.Draw
	case OutcomeAway:
		return e.Away
	}
	panic(fmt.Sprintf("models: unknown outcome %d", int(o)))
}

// WithQuote returns a copy of the record with the outcome's quote replaced
func (e EventRecord) WithQuote(o Outcome, q OutcomeQuote) EventRecord {
	switch o {
	case OutcomeHome:
		e.Home = q
	case OutcomeDraw:
		e.Draw = q
	case OutcomeAway:
		e.Away = q
	default:
		panic(fmt.Sprintf("models: unknown outcome %d", int(o)))
	}
	return e
}

// Prices returns the best prices in Home, Draw, Away order
func (e EventRecord) Prices() [3]decimal.Decimal {
	return [3]decimal.Decimal{e.Home.Price, e.Draw.Price, e.Away.Price}
}

// TeamLabel names the outcome for display ("Draw" for the draw)
func (e EventRecord) TeamLabel(o Outcome) string {
	switch o {
	case OutcomeHome:
		return e.HomeTeam
	case OutcomeAway:
		return e.AwayTeam
	default:
		return "Draw"
	}
}

// ThreeWayAllocation is the stake split over all three outcomes
type ThreeWayAllocation struct {
	HomeStake           decimal.Decimal `json:"home_stake"`
	DrawStake           decimal.Decimal `json:"draw_stake"`
	AwayStake           decimal.Decimal `json:"away_stake"`
	GuaranteedReturnPct decimal.Decimal `json:"guaranteed_return_pct"`
	AnnualizedReturnPct decimal.Decimal `json:"annualized_return_pct"`
}

// Stake returns the fraction staked on the outcome
func (a ThreeWayAllocation) Stake(o Outcome) decimal.Decimal {
	switch o {
	case OutcomeHome:
		return a.HomeStake
	case OutcomeDraw:
		return a.DrawStake
	default:
		return a.AwayStake
	}
}

// ThreeWayResult is the arbitrage verdict over all three outcomes.
// Allocation is nil unless Possible.
type ThreeWayResult struct {
	Possible   bool                `json:"possible"`
	Allocation *ThreeWayAllocation `json:"allocation,omitempty"`
}

// TwoWayAllocation splits a stake between backing an outcome and betting against it
type TwoWayAllocation struct {
	YesStake  decimal.Decimal `json:"yes_stake"`
	NoStake   decimal.Decimal `json:"no_stake"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

// TwoWayResult is the binary arbitrage verdict for one outcome.
// Allocation is nil unless Possible.
type TwoWayResult struct {
	Possible   bool              `json:"possible"`
	Allocation *TwoWayAllocation `json:"allocation,omitempty"`
}

// AnalyzedEvent pairs an event with its arbitrage results.
// TwoWay only has entries for outcomes that carry a converse price.
type AnalyzedEvent struct {
	Event    EventRecord              `json:"event"`
	ThreeWay ThreeWayResult           `json:"three_way"`
	TwoWay   map[Outcome]TwoWayResult `json:"two_way,omitempty"`
}

// SkippedEvent records why an event was left out of a cycle
type SkippedEvent struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// Snapshot is the complete output of one pipeline run
type Snapshot struct {
	CycleID             uuid.UUID       `json:"cycle_id"`
	GeneratedAt         time.Time       `json:"generated_at"`
	BookmakersUpdatedAt time.Time       `json:"bookmakers_updated_at"`
	MarketUpdatedAt     time.Time       `json:"market_updated_at"` // zero when the market fetch failed
	RawEvents           []RawEvent      `json:"raw_events"`
	Bookmakers          []AnalyzedEvent `json:"bookmakers"`
	Merged              []AnalyzedEvent `json:"merged"`
	Skipped             []SkippedEvent  `json:"skipped,omitempty"`
}

// FindMerged returns the merged analysis for an event
func (s *Snapshot) FindMerged(eventID string) (AnalyzedEvent, bool) {
	for _, ev := range s.Merged {
		if ev.Event.ID == eventID {
			return ev, true
		}
	}
	return AnalyzedEvent{}, false
}

// FindRaw returns the raw feed entry for an event
func (s *Snapshot) FindRaw(eventID string) (RawEvent, bool) {
	for _, ev := range s.RawEvents {
		if ev.ID == eventID {
			return ev, true
		}
	}
	return RawEvent{}, false
}
