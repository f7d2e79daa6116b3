package polymarket

import (
	"fmt"
	"strings"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// SlugResolver builds the market slug for each outcome of a fixture:
// {prefix}-{home}-{away}-{date}-{home|draw|away}
type SlugResolver struct {
	prefix        string
	abbreviations map[string]string
}

// NewSlugResolver creates a resolver. Abbreviation keys are matched
// case-insensitively.
func NewSlugResolver(prefix string, abbreviations map[string]string) *SlugResolver {
	abbr := make(map[string]string, len(abbreviations))
	for team, code := range abbreviations {
		abbr[strings.ToLower(strings.TrimSpace(team))] = code
	}
	return &SlugResolver{prefix: prefix, abbreviations: abbr}
}

// TeamCode returns the slug code for a team, falling back to the first
// three letters of the lowercased name.
func (r *SlugResolver) TeamCode(team string) string {
	name := strings.ToLower(strings.TrimSpace(team))
	if code, ok := r.abbreviations[name]; ok {
		return code
	}

	runes := []rune(name)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}

// Slug returns the market slug for one outcome of an event
func (r *SlugResolver) Slug(rec models.EventRecord, o models.Outcome) string {
	home := r.TeamCode(rec.HomeTeam)
	away := r.TeamCode(rec.AwayTeam)

	var suffix string
	switch o {
	case models.OutcomeHome:
		suffix = home
	case models.OutcomeAway:
		suffix = away
	default:
		suffix = "draw"
	}

	return fmt.Sprintf("%s-%s-%s-%s-%s", r.prefix, home, away, rec.Date, suffix)
}
