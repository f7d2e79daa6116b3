package merger

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// DefaultSourceName names the prediction market in provenance sets
const DefaultSourceName = "polymarket"

var one = decimal.NewFromInt(1)

// Merger overlays binary market asks onto bookmaker best prices
type Merger struct {
	source string
	logger zerolog.Logger
}

// NewMerger creates a new market merger. An empty source falls back to DefaultSourceName.
func NewMerger(source string, logger zerolog.Logger) *Merger {
	if source == "" {
		source = DefaultSourceName
	}
	return &Merger{
		source: source,
		logger: logger.With().Str("component", "merger").Logger(),
	}
}

// Source returns the provenance name used for market quotes
func (m *Merger) Source() string {
	return m.source
}

// MergeEvent returns a new record with the snapshot's quotes applied.
// A usable yes ask becomes 1/ask and competes through the best-price rule.
// A usable no ask then attaches 1/no_ask as the converse price. Outcomes
// without a usable yes ask are left exactly as they were.
func (m *Merger) MergeEvent(record models.EventRecord, snapshot models.MarketSnapshot) models.EventRecord {
	merged := record
	for _, outcome := range models.AllOutcomes {
		quote := record.Quote(outcome)
		merged = merged.WithQuote(outcome, quote.Clone())

		market, ok := snapshot.Lookup(record.ID, outcome)
		if !ok {
			continue
		}

		yes, ok := effectiveOdds(market.YesAsk)
		if !ok {
			m.logger.Debug().
				Str("event_id", record.ID).
				Str("outcome", outcome.String()).
				Msg("no usable yes ask")
			continue
		}

		updated := quote.Offer(yes, m.source)
		if no, ok := effectiveOdds(market.NoAsk); ok {
			updated = updated.WithConverse(no)
		}
		merged = merged.WithQuote(outcome, updated)
	}
	return merged
}

// Merge applies MergeEvent to every record, preserving order
func (m *Merger) Merge(records []models.EventRecord, snapshot models.MarketSnapshot) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(records))
	for _, record := range records {
		out = append(out, m.MergeEvent(record, snapshot))
	}

	m.logger.Debug().
		Int("count", len(out)).
		Int("market_quotes", len(snapshot.Quotes)).
		Msg("merged market quotes")

	return out
}

// effectiveOdds converts an ask in (0, 1] to decimal odds. Anything else
// is unusable and is never inverted.
func effectiveOdds(ask decimal.NullDecimal) (decimal.Decimal, bool) {
	if !ask.Valid || !ask.Decimal.IsPositive() || ask.Decimal.GreaterThan(one) {
		return decimal.Decimal{}, false
	}
	return one.Div(ask.Decimal), true
}
