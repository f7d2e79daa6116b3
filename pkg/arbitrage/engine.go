package arbitrage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// DefaultPeriodsPerYear compounds one opportunity per week
const DefaultPeriodsPerYear = 52

// compoundPrecision bounds the digits kept between compounding steps
const compoundPrecision = 16

// ErrNonPositivePrice is returned instead of dividing by a zero or negative price
var ErrNonPositivePrice = errors.New("price must be positive")

// ReasonInvalidPrice marks events the engine could not analyze
const ReasonInvalidPrice = "invalid_price"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Params tunes the engine
type Params struct {
	PeriodsPerYear int
}

// Engine computes three-way and two-way arbitrage over best prices
type Engine struct {
	params Params
	logger zerolog.Logger
}

// NewEngine creates a new arbitrage engine
func NewEngine(params Params, logger zerolog.Logger) *Engine {
	if params.PeriodsPerYear <= 0 {
		params.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return &Engine{
		params: params,
		logger: logger.With().Str("component", "arbitrage_engine").Logger(),
	}
}

// ComputeThreeWay checks whether backing all three outcomes at the given
// prices (home, draw, away) guarantees a profit.
//
// With w_i = 1/p_i and S = sum(w_i) the book is an arbitrage iff S < 1.
// Multiplying through by the product P of all prices keeps every term exact:
// S = Q/P where Q is the sum of the pairwise products, so S < 1 iff Q < P,
// stake_i = (P/p_i)/Q and the return is (P/Q - 1) * 100.
func (e *Engine) ComputeThreeWay(prices [3]decimal.Decimal) (models.ThreeWayResult, error) {
	for i, p := range prices {
		if !p.IsPositive() {
			return models.ThreeWayResult{}, fmt.Errorf("%s price %s: %w", models.AllOutcomes[i], p.String(), ErrNonPositivePrice)
		}
	}

	h, d, a := prices[0], prices[1], prices[2]
	product := h.Mul(d).Mul(a)
	others := [3]decimal.Decimal{d.Mul(a), h.Mul(a), h.Mul(d)}
	pairs := others[0].Add(others[1]).Add(others[2])

	// Strict inequality: a book summing to exactly 1 has no edge
	if pairs.GreaterThanOrEqual(product) {
		return models.ThreeWayResult{Possible: false}, nil
	}

	guaranteed := product.Sub(pairs).Div(pairs).Mul(hundred)
	allocation := &models.ThreeWayAllocation{
		HomeStake:           others[0].Div(pairs),
		DrawStake:           others[1].Div(pairs),
		AwayStake:           others[2].Div(pairs),
		GuaranteedReturnPct: guaranteed,
		AnnualizedReturnPct: e.annualize(guaranteed),
	}

	return models.ThreeWayResult{Possible: true, Allocation: allocation}, nil
}

// ComputeTwoWay checks whether backing an outcome at yes and laying it at no
// guarantees a profit. A = 1/yes + 1/no = (yes+no)/(yes*no), so A < 1 iff
// yes+no < yes*no.
func (e *Engine) ComputeTwoWay(yes, no decimal.Decimal) (models.TwoWayResult, error) {
	if !yes.IsPositive() {
		return models.TwoWayResult{}, fmt.Errorf("yes price %s: %w", yes.String(), ErrNonPositivePrice)
	}
	if !no.IsPositive() {
		return models.TwoWayResult{}, fmt.Errorf("no price %s: %w", no.String(), ErrNonPositivePrice)
	}

	total := yes.Add(no)
	product := yes.Mul(no)
	if total.GreaterThanOrEqual(product) {
		return models.TwoWayResult{Possible: false}, nil
	}

	return models.TwoWayResult{
		Possible: true,
		Allocation: &models.TwoWayAllocation{
			YesStake:  no.Div(total),
			NoStake:   yes.Div(total),
			ReturnPct: product.Sub(total).Div(total).Mul(hundred),
		},
	}, nil
}

// AnalyzeEvent runs the three-way check and a two-way check for every
// outcome that carries a converse price.
func (e *Engine) AnalyzeEvent(event models.EventRecord) (models.AnalyzedEvent, error) {
	threeWay, err := e.ComputeThreeWay(event.Prices())
	if err != nil {
		return models.AnalyzedEvent{}, fmt.Errorf("event %s: %w", event.ID, err)
	}

	analyzed := models.AnalyzedEvent{
		Event:    event,
		ThreeWay: threeWay,
	}

	for _, outcome := range models.AllOutcomes {
		quote := event.Quote(outcome)
		if !quote.ConversePrice.Valid {
			continue
		}
		twoWay, err := e.ComputeTwoWay(quote.Price, quote.ConversePrice.Decimal)
		if err != nil {
			return models.AnalyzedEvent{}, fmt.Errorf("event %s %s: %w", event.ID, outcome, err)
		}
		if analyzed.TwoWay == nil {
			analyzed.TwoWay = make(map[models.Outcome]models.TwoWayResult, len(models.AllOutcomes))
		}
		analyzed.TwoWay[outcome] = twoWay
	}

	return analyzed, nil
}

// Analyze runs AnalyzeEvent over a batch. Events that fail are logged and
// returned as skipped.
func (e *Engine) Analyze(events []models.EventRecord) ([]models.AnalyzedEvent, []models.SkippedEvent) {
	results := make([]models.AnalyzedEvent, 0, len(events))
	var skipped []models.SkippedEvent
	opportunities := 0

	for _, event := range events {
		analyzed, err := e.AnalyzeEvent(event)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Msg("skipping event in arbitrage analysis")
			skipped = append(skipped, models.SkippedEvent{EventID: event.ID, Reason: ReasonInvalidPrice})
			continue
		}
		if analyzed.ThreeWay.Possible {
			opportunities++
		}
		results = append(results, analyzed)
	}

	e.logger.Debug().
		Int("input_count", len(events)).
		Int("output_count", len(results)).
		Int("skipped_count", len(skipped)).
		Int("three_way_opportunities", opportunities).
		Msg("analyzed events")

	return results, skipped
}

// annualize compounds a per-period percentage return over a year:
// ((1 + pct/100)^n - 1) * 100
func (e *Engine) annualize(pct decimal.Decimal) decimal.Decimal {
	base := one.Add(pct.Div(hundred))
	acc := one
	for i := 0; i < e.params.PeriodsPerYear; i++ {
		acc = acc.Mul(base).Round(compoundPrecision)
	}
	return acc.Sub(one).Mul(hundred)
}
