package arbitrage

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// testEngineSetup is a helper struct to hold test dependencies
type testEngineSetup struct {
	engine *Engine
}

// setupTestEngine creates an engine with weekly compounding
func setupTestEngine() *testEngineSetup {
	return &testEngineSetup{
		engine: NewEngine(Params{PeriodsPerYear: 52}, zerolog.Nop()),
	}
}

func prices(h, d, a float64) [3]decimal.Decimal {
	return [3]decimal.Decimal{
		decimal.NewFromFloat(h),
		decimal.NewFromFloat(d),
		decimal.NewFromFloat(a),
	}
}

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func event(id string, h, d, a float64) models.EventRecord {
	return models.EventRecord{
		ID:       id,
		Date:     "2024-08-17",
		HomeTeam: "Arsenal",
		AwayTeam: "Wolverhampton Wanderers",
		Home:     models.NewOutcomeQuote(decimal.NewFromFloat(h), "bet365"),
		Draw:     models.NewOutcomeQuote(decimal.NewFromFloat(d), "bet365"),
		Away:     models.NewOutcomeQuote(decimal.NewFromFloat(a), "bet365"),
	}
}

func TestNewEngine_DefaultsPeriods(t *testing.T) {
	engine := NewEngine(Params{}, zerolog.Nop())
	assert.Equal(t, DefaultPeriodsPerYear, engine.params.PeriodsPerYear)
}

func TestComputeThreeWay_NotPossible(t *testing.T) {
	setup := setupTestEngine()

	tests := []struct {
		name   string
		prices [3]decimal.Decimal
	}{
		{name: "overround book", prices: prices(2.0, 3.5, 4.0)},
		{name: "near miss", prices: prices(2.10, 3.40, 4.20)},
		{name: "exactly fair book", prices: prices(3.0, 3.0, 3.0)},
		{name: "degenerate price of one", prices: prices(1.0, 10.0, 10.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := setup.engine.ComputeThreeWay(tt.prices)
			require.NoError(t, err)
			assert.False(t, result.Possible)
			assert.Nil(t, result.Allocation)
		})
	}
}

func TestComputeThreeWay_Possible(t *testing.T) {
	setup := setupTestEngine()

	result, err := setup.engine.ComputeThreeWay(prices(2.5, 4.0, 4.5))
	require.NoError(t, err)
	require.True(t, result.Possible)
	require.NotNil(t, result.Allocation)

	alloc := result.Allocation
	assert.InDelta(t, 0.4586, f64(alloc.HomeStake), 0.0001)
	assert.InDelta(t, 0.2866, f64(alloc.DrawStake), 0.0001)
	assert.InDelta(t, 0.2548, f64(alloc.AwayStake), 0.0001)

	sum := alloc.HomeStake.Add(alloc.DrawStake).Add(alloc.AwayStake)
	assert.InDelta(t, 1.0, f64(sum), 1e-12)

	assert.InDelta(t, 14.65, f64(alloc.GuaranteedReturnPct), 0.02)
	assert.True(t, alloc.GuaranteedReturnPct.IsPositive())
}

func TestComputeThreeWay_AnnualizedCompoundsFraction(t *testing.T) {
	setup := setupTestEngine()

	result, err := setup.engine.ComputeThreeWay(prices(2.5, 4.0, 4.5))
	require.NoError(t, err)
	require.True(t, result.Possible)

	weekly := f64(result.Allocation.GuaranteedReturnPct)
	annual := f64(result.Allocation.AnnualizedReturnPct)

	expected := (math.Pow(1+weekly/100, 52) - 1) * 100
	assert.InEpsilon(t, expected, annual, 1e-9)

	// 14.65% a week compounds to roughly 1222x the stake
	assert.Greater(t, annual, 1.2e5)
	assert.Less(t, annual, 1.25e5)

	// Compounding the percentage figure itself would be astronomically larger
	assert.Less(t, annual, math.Pow(1+weekly, 52))
}

func TestComputeThreeWay_AnnualizedSmallEdge(t *testing.T) {
	engine := NewEngine(Params{PeriodsPerYear: 2}, zerolog.Nop())

	// Each leg at 3.3 gives S = 0.909..., return exactly 10%
	result, err := engine.ComputeThreeWay(prices(3.3, 3.3, 3.3))
	require.NoError(t, err)
	require.True(t, result.Possible)

	assert.InDelta(t, 10.0, f64(result.Allocation.GuaranteedReturnPct), 1e-9)
	assert.InDelta(t, 21.0, f64(result.Allocation.AnnualizedReturnPct), 1e-9)
}

func TestComputeThreeWay_StakesSumToOne(t *testing.T) {
	setup := setupTestEngine()

	triples := [][3]float64{
		{2.5, 4.0, 4.5},
		{3.3, 3.3, 3.3},
		{1.5, 7.0, 12.0},
		{2.9, 3.8, 3.9},
		{10.0, 10.0, 1.3},
	}

	for _, tr := range triples {
		p := prices(tr[0], tr[1], tr[2])
		result, err := setup.engine.ComputeThreeWay(p)
		require.NoError(t, err)

		s := 1/tr[0] + 1/tr[1] + 1/tr[2]
		if s >= 1 {
			assert.False(t, result.Possible, "triple %v", tr)
			assert.Nil(t, result.Allocation)
			continue
		}

		require.True(t, result.Possible, "triple %v", tr)
		a := result.Allocation
		sum := a.HomeStake.Add(a.DrawStake).Add(a.AwayStake)
		assert.InDelta(t, 1.0, f64(sum), 1e-12, "triple %v", tr)
		assert.True(t, a.GuaranteedReturnPct.IsPositive(), "triple %v", tr)
	}
}

func TestComputeThreeWay_NonPositivePrice(t *testing.T) {
	setup := setupTestEngine()

	tests := []struct {
		name   string
		prices [3]decimal.Decimal
	}{
		{name: "zero home", prices: prices(0, 3.0, 3.0)},
		{name: "zero draw", prices: prices(3.0, 0, 3.0)},
		{name: "negative away", prices: prices(3.0, 3.0, -2.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := setup.engine.ComputeThreeWay(tt.prices)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNonPositivePrice))
			assert.False(t, result.Possible)
		})
	}
}

func TestComputeTwoWay_Possible(t *testing.T) {
	setup := setupTestEngine()

	result, err := setup.engine.ComputeTwoWay(decimal.NewFromFloat(1.8), decimal.NewFromFloat(3.0))
	require.NoError(t, err)
	require.True(t, result.Possible)
	require.NotNil(t, result.Allocation)

	assert.True(t, result.Allocation.YesStake.Equal(decimal.NewFromFloat(0.625)))
	assert.True(t, result.Allocation.NoStake.Equal(decimal.NewFromFloat(0.375)))
	assert.InDelta(t, 12.5, f64(result.Allocation.ReturnPct), 1e-9)
}

func TestComputeTwoWay_NotPossible(t *testing.T) {
	setup := setupTestEngine()

	tests := []struct {
		name    string
		yes, no float64
	}{
		{name: "overround", yes: 1.5, no: 2.5},
		{name: "exactly fair", yes: 2.0, no: 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := setup.engine.ComputeTwoWay(decimal.NewFromFloat(tt.yes), decimal.NewFromFloat(tt.no))
			require.NoError(t, err)
			assert.False(t, result.Possible)
			assert.Nil(t, result.Allocation)
		})
	}
}

func TestComputeTwoWay_NonPositivePrice(t *testing.T) {
	setup := setupTestEngine()

	_, err := setup.engine.ComputeTwoWay(decimal.Zero, decimal.NewFromFloat(2.0))
	assert.ErrorIs(t, err, ErrNonPositivePrice)

	_, err = setup.engine.ComputeTwoWay(decimal.NewFromFloat(2.0), decimal.NewFromFloat(-1))
	assert.ErrorIs(t, err, ErrNonPositivePrice)
}

func TestAnalyzeEvent_TwoWayOnlyWithConverse(t *testing.T) {
	setup := setupTestEngine()

	ev := event("evt-1", 2.5, 4.0, 4.5)
	ev.Home = ev.Home.WithConverse(decimal.NewFromFloat(3.0))

	analyzed, err := setup.engine.AnalyzeEvent(ev)
	require.NoError(t, err)

	assert.True(t, analyzed.ThreeWay.Possible)
	require.Len(t, analyzed.TwoWay, 1)

	home, ok := analyzed.TwoWay[models.OutcomeHome]
	require.True(t, ok)
	// 1/2.5 + 1/3.0 = 0.733
	assert.True(t, home.Possible)

	_, ok = analyzed.TwoWay[models.OutcomeDraw]
	assert.False(t, ok)
}

func TestAnalyzeEvent_NoConverseNoTwoWay(t *testing.T) {
	setup := setupTestEngine()

	analyzed, err := setup.engine.AnalyzeEvent(event("evt-1", 2.0, 3.5, 4.0))
	require.NoError(t, err)

	assert.False(t, analyzed.ThreeWay.Possible)
	assert.Nil(t, analyzed.TwoWay)
}

func TestAnalyze_SkipsInvalidEvents(t *testing.T) {
	setup := setupTestEngine()

	events := []models.EventRecord{
		event("good-1", 2.5, 4.0, 4.5),
		event("bad", 0, 4.0, 4.5),
		event("good-2", 2.0, 3.5, 4.0),
	}

	results, skipped := setup.engine.Analyze(events)

	require.Len(t, results, 2)
	assert.Equal(t, "good-1", results[0].Event.ID)
	assert.Equal(t, "good-2", results[1].Event.ID)
	assert.Equal(t, []models.SkippedEvent{{EventID: "bad", Reason: ReasonInvalidPrice}}, skipped)
}

func TestAnalyze_SkipsInvalidConversePrice(t *testing.T) {
	setup := setupTestEngine()

	bad := event("bad-no", 2.5, 4.0, 4.5)
	bad.Home = bad.Home.WithConverse(decimal.Zero)

	results, skipped := setup.engine.Analyze([]models.EventRecord{bad})

	assert.Empty(t, results)
	assert.Equal(t, []models.SkippedEvent{{EventID: "bad-no", Reason: ReasonInvalidPrice}}, skipped)
}

func TestAnalyze_Empty(t *testing.T) {
	setup := setupTestEngine()

	results, skipped := setup.engine.Analyze(nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, skipped)
}
