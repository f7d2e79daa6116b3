package merger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// testMergerSetup is a helper struct to hold test dependencies
type testMergerSetup struct {
	merger *Merger
}

func setupTestMerger() *testMergerSetup {
	return &testMergerSetup{merger: NewMerger("", zerolog.Nop())}
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func ask(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

func record(id string) models.EventRecord {
	return models.EventRecord{
		ID:       id,
		Date:     "2024-08-17",
		HomeTeam: "Arsenal",
		AwayTeam: "Chelsea",
		Home:     models.NewOutcomeQuote(dec(2.0), "bet365"),
		Draw:     models.NewOutcomeQuote(dec(3.5), "bet365"),
		Away:     models.NewOutcomeQuote(dec(4.0), "williamhill"),
	}
}

func snapshot(quotes map[models.QuoteKey]models.MarketQuote) models.MarketSnapshot {
	return models.MarketSnapshot{
		Source:    DefaultSourceName,
		FetchedAt: time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC),
		Quotes:    quotes,
	}
}

func TestNewMerger_DefaultSource(t *testing.T) {
	assert.Equal(t, "polymarket", NewMerger("", zerolog.Nop()).Source())
	assert.Equal(t, "kalshi", NewMerger("kalshi", zerolog.Nop()).Source())
}

func TestMergeEvent_HigherMarketPriceWins(t *testing.T) {
	setup := setupTestMerger()

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-1", Outcome: models.OutcomeHome}: {YesAsk: ask(0.4), NoAsk: ask(0.625)},
	})

	merged := setup.merger.MergeEvent(record("evt-1"), snap)

	assert.True(t, merged.Home.Price.Equal(dec(2.5)))
	assert.Equal(t, []string{"polymarket"}, merged.Home.SourceIDs)
	require.True(t, merged.Home.ConversePrice.Valid)
	assert.True(t, merged.Home.ConversePrice.Decimal.Equal(dec(1.6)))

	// Other outcomes untouched
	assert.True(t, merged.Draw.Price.Equal(dec(3.5)))
	assert.False(t, merged.Draw.ConversePrice.Valid)
}

func TestMergeEvent_EqualPriceJoinsProvenance(t *testing.T) {
	setup := setupTestMerger()

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-1", Outcome: models.OutcomeAway}: {YesAsk: ask(0.25)},
	})

	merged := setup.merger.MergeEvent(record("evt-1"), snap)

	assert.True(t, merged.Away.Price.Equal(dec(4.0)))
	assert.Equal(t, []string{"williamhill", "polymarket"}, merged.Away.SourceIDs)
	assert.False(t, merged.Away.ConversePrice.Valid)
}

func TestMergeEvent_LowerPriceKeepsBookmakerButAttachesConverse(t *testing.T) {
	setup := setupTestMerger()

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-1", Outcome: models.OutcomeDraw}: {YesAsk: ask(0.5), NoAsk: ask(0.8)},
	})

	merged := setup.merger.MergeEvent(record("evt-1"), snap)

	assert.True(t, merged.Draw.Price.Equal(dec(3.5)))
	assert.Equal(t, []string{"bet365"}, merged.Draw.SourceIDs)
	require.True(t, merged.Draw.ConversePrice.Valid)
	assert.True(t, merged.Draw.ConversePrice.Decimal.Equal(dec(1.25)))
}

func TestMergeEvent_UnusableAsks(t *testing.T) {
	setup := setupTestMerger()

	tests := []struct {
		name  string
		quote models.MarketQuote
	}{
		{name: "missing yes ask", quote: models.MarketQuote{NoAsk: ask(0.5)}},
		{name: "zero yes ask", quote: models.MarketQuote{YesAsk: ask(0), NoAsk: ask(0.5)}},
		{name: "negative yes ask", quote: models.MarketQuote{YesAsk: ask(-0.2)}},
		{name: "yes ask above one", quote: models.MarketQuote{YesAsk: ask(1.2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot(map[models.QuoteKey]models.MarketQuote{
				{EventID: "evt-1", Outcome: models.OutcomeHome}: tt.quote,
			})

			original := record("evt-1")
			merged := setup.merger.MergeEvent(original, snap)

			assert.Equal(t, original, merged)
			assert.False(t, merged.Home.ConversePrice.Valid)
		})
	}
}

func TestMergeEvent_UnusableNoAskLeavesConverseAbsent(t *testing.T) {
	setup := setupTestMerger()

	for _, no := range []decimal.NullDecimal{{}, ask(0), ask(1.5)} {
		snap := snapshot(map[models.QuoteKey]models.MarketQuote{
			{EventID: "evt-1", Outcome: models.OutcomeHome}: {YesAsk: ask(0.4), NoAsk: no},
		})

		merged := setup.merger.MergeEvent(record("evt-1"), snap)
		assert.True(t, merged.Home.Price.Equal(dec(2.5)))
		assert.False(t, merged.Home.ConversePrice.Valid)
	}
}

func TestMergeEvent_AskOfOne(t *testing.T) {
	setup := setupTestMerger()

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-1", Outcome: models.OutcomeHome}: {YesAsk: ask(1), NoAsk: ask(1)},
	})

	merged := setup.merger.MergeEvent(record("evt-1"), snap)
	assert.True(t, merged.Home.Price.Equal(dec(2.0)))
	require.True(t, merged.Home.ConversePrice.Valid)
	assert.True(t, merged.Home.ConversePrice.Decimal.Equal(dec(1)))
}

func TestMergeEvent_EffectiveOddsAlwaysFinitePositive(t *testing.T) {
	setup := setupTestMerger()

	for _, a := range []float64{0.001, 0.01, 0.17, 0.333, 0.5, 0.99, 1.0} {
		rec := record("evt-1")
		rec.Home = models.NewOutcomeQuote(dec(1.01), "bet365")

		snap := snapshot(map[models.QuoteKey]models.MarketQuote{
			{EventID: "evt-1", Outcome: models.OutcomeHome}: {YesAsk: ask(a), NoAsk: ask(a)},
		})

		merged := setup.merger.MergeEvent(rec, snap)
		assert.True(t, merged.Home.Price.GreaterThanOrEqual(dec(1)), "ask %v", a)
		assert.True(t, merged.Home.ConversePrice.Decimal.GreaterThanOrEqual(dec(1)), "ask %v", a)
	}
}

func TestMergeEvent_DoesNotAliasInput(t *testing.T) {
	setup := setupTestMerger()

	original := record("evt-1")
	original.Away = original.Away.Offer(dec(4.0), "sky")

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-1", Outcome: models.OutcomeAway}: {YesAsk: ask(0.25)},
	})

	merged := setup.merger.MergeEvent(original, snap)
	require.Equal(t, []string{"williamhill", "sky", "polymarket"}, merged.Away.SourceIDs)

	// Input provenance untouched and not sharing a backing array
	assert.Equal(t, []string{"williamhill", "sky"}, original.Away.SourceIDs)
	merged.Home.SourceIDs[0] = "mutated"
	assert.Equal(t, "bet365", original.Home.SourceIDs[0])
}

func TestMerge_EmptySnapshot(t *testing.T) {
	setup := setupTestMerger()

	records := []models.EventRecord{record("evt-1"), record("evt-2")}
	merged := setup.merger.Merge(records, models.MarketSnapshot{})

	assert.Equal(t, records, merged)
}

func TestMerge_KeyedByEvent(t *testing.T) {
	setup := setupTestMerger()

	snap := snapshot(map[models.QuoteKey]models.MarketQuote{
		{EventID: "evt-2", Outcome: models.OutcomeHome}: {YesAsk: ask(0.4)},
	})

	merged := setup.merger.Merge([]models.EventRecord{record("evt-1"), record("evt-2")}, snap)

	require.Len(t, merged, 2)
	assert.Equal(t, []string{"bet365"}, merged[0].Home.SourceIDs)
	assert.Equal(t, []string{"polymarket"}, merged[1].Home.SourceIDs)
}
