package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// Skip reasons reported for events left out of a batch
const (
	ReasonMissingOutcome = "missing_outcome"
	ReasonMalformed      = "malformed"
)

var minPrice = decimal.NewFromInt(1)

// Normalizer reduces a raw bookmaker feed to one best-price record per event
type Normalizer struct {
	logger zerolog.Logger
}

// NewNormalizer creates a new odds normalizer
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With().Str("component", "normalizer").Logger(),
	}
}

// NormalizeEvent picks the best price for each outcome across every bookmaker.
// Invalid quotes are logged and rejected without touching the running best.
// An event left without any of the three outcomes yields a MissingOutcomeError.
func (n *Normalizer) NormalizeEvent(raw models.RawEvent) (models.EventRecord, error) {
	if strings.TrimSpace(raw.HomeTeam) == "" || strings.TrimSpace(raw.AwayTeam) == "" {
		return models.EventRecord{}, fmt.Errorf("event %s: missing team names", raw.ID)
	}

	var quotes [3]models.OutcomeQuote

	for _, bookmaker := range raw.Bookmakers {
		for _, market := range bookmaker.Markets {
			if market.Key != models.H2HMarket {
				continue
			}

			for _, offered := range market.Outcomes {
				outcome, ok := n.resolveOutcome(raw, offered.Name)
				if !ok {
					continue
				}

				if err := validatePrice(raw.ID, bookmaker.Key, offered); err != nil {
					n.logger.Warn().
						Err(err).
						Str("event_id", raw.ID).
						Str("bookmaker", bookmaker.Key).
						Msg("rejected quote")
					continue
				}

				quotes[outcome] = quotes[outcome].Offer(offered.Price.Value, bookmaker.Key)
			}
		}
	}

	for _, outcome := range models.AllOutcomes {
		if quotes[outcome].IsZero() {
			return models.EventRecord{}, &models.MissingOutcomeError{EventID: raw.ID, Outcome: outcome}
		}
	}

	return models.EventRecord{
		ID:           raw.ID,
		Date:         raw.CommenceTime.UTC().Format("2006-01-02"),
		CommenceTime: raw.CommenceTime,
		HomeTeam:     raw.HomeTeam,
		AwayTeam:     raw.AwayTeam,
		Home:         quotes[models.OutcomeHome],
		Draw:         quotes[models.OutcomeDraw],
		Away:         quotes[models.OutcomeAway],
	}, nil
}

// Normalize runs NormalizeEvent over a feed. Events that cannot be completed
// are reported as skipped and the rest of the batch continues.
func (n *Normalizer) Normalize(raw []models.RawEvent) ([]models.EventRecord, []models.SkippedEvent) {
	records := make([]models.EventRecord, 0, len(raw))
	var skipped []models.SkippedEvent

	for _, event := range raw {
		record, err := n.NormalizeEvent(event)
		if err != nil {
			reason := ReasonMalformed
			var missing *models.MissingOutcomeError
			if errors.As(err, &missing) {
				reason = ReasonMissingOutcome
			}

			n.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("reason", reason).
				Msg("skipping event")
			skipped = append(skipped, models.SkippedEvent{EventID: event.ID, Reason: reason})
			continue
		}
		records = append(records, record)
	}

	n.logger.Debug().
		Int("input_count", len(raw)).
		Int("output_count", len(records)).
		Int("skipped_count", len(skipped)).
		Msg("normalized feed")

	return records, skipped
}

// resolveOutcome maps a bookmaker outcome name onto the fixture's outcomes
func (n *Normalizer) resolveOutcome(raw models.RawEvent, name string) (models.Outcome, bool) {
	name = strings.TrimSpace(name)
	switch {
	case strings.EqualFold(name, raw.HomeTeam):
		return models.OutcomeHome, true
	case strings.EqualFold(name, raw.AwayTeam):
		return models.OutcomeAway, true
	case strings.EqualFold(name, models.DrawOutcomeName):
		return models.OutcomeDraw, true
	default:
		return 0, false
	}
}

// validatePrice rejects non-numeric prices and anything not above 1.0
func validatePrice(eventID, source string, offered models.RawOutcome) error {
	if !offered.Price.Valid || offered.Price.Value.LessThanOrEqual(minPrice) {
		return &models.InvalidPriceError{
			EventID: eventID,
			Source:  source,
			Outcome: offered.Name,
			Raw:     offered.Price.Raw,
		}
	}
	return nil
}
