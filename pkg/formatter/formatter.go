package formatter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

// Placeholder is shown wherever a value is unavailable
const Placeholder = "-"

// ThreeWayTable is the column-oriented three-way view, one entry per event in every column
type ThreeWayTable struct {
	EventID          []string `json:"Event ID"`
	Date             []string `json:"Date"`
	HomeTeam         []string `json:"Home Team"`
	AwayTeam         []string `json:"Away Team"`
	HomeWin          []string `json:"Home Win"`
	Draw             []string `json:"Draw"`
	AwayWin          []string `json:"Away Win"`
	HomeStake        []string `json:"Home Stake"`
	DrawStake        []string `json:"Draw Stake"`
	AwayStake        []string `json:"Away Stake"`
	Return           []string `json:"Return"`
	AnnualisedReturn []string `json:"Annualised Return"`
}

// Len returns the number of rows
func (t ThreeWayTable) Len() int {
	return len(t.Date)
}

// TwoWayTable holds one row per outcome in Home, Draw, Away order
type TwoWayTable struct {
	Team     []string `json:"Team"`
	YesOdds  []string `json:"Yes Odds"`
	NoOdds   []string `json:"No Odds"`
	YesStake []string `json:"Yes Stake"`
	NoStake  []string `json:"No Stake"`
	Return   []string `json:"Return"`
}

// MatchTable is the two-way view of a single event
type MatchTable struct {
	EventID   string      `json:"Event ID"`
	MatchName string      `json:"Match Name"`
	Table     TwoWayTable `json:"Arbitrage Table"`
}

// DetailRow is one outcome priced by every bookmaker
type DetailRow struct {
	Outcome string   `json:"Outcome"`
	Prices  []string `json:"Prices"`
	Best    []bool   `json:"Best"`
}

// DetailTable lists every bookmaker's head-to-head prices for one event
type DetailTable struct {
	EventID    string      `json:"Event ID"`
	MatchName  string      `json:"Match Name"`
	Bookmakers []string    `json:"Bookmakers"`
	Rows       []DetailRow `json:"Rows"`
}

// Formatter reshapes analysis results into display tables
type Formatter struct{}

// NewFormatter creates a new presentation formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// ThreeWayTable builds the three-way view
func (f *Formatter) ThreeWayTable(events []models.AnalyzedEvent) ThreeWayTable {
	n := len(events)
	table := ThreeWayTable{
		EventID:          make([]string, 0, n),
		Date:             make([]string, 0, n),
		HomeTeam:         make([]string, 0, n),
		AwayTeam:         make([]string, 0, n),
		HomeWin:          make([]string, 0, n),
		Draw:             make([]string, 0, n),
		AwayWin:          make([]string, 0, n),
		HomeStake:        make([]string, 0, n),
		DrawStake:        make([]string, 0, n),
		AwayStake:        make([]string, 0, n),
		Return:           make([]string, 0, n),
		AnnualisedReturn: make([]string, 0, n),
	}

	for _, ev := range events {
		table.EventID = append(table.EventID, ev.Event.ID)
		table.Date = append(table.Date, ev.Event.Date)
		table.HomeTeam = append(table.HomeTeam, ev.Event.HomeTeam)
		table.AwayTeam = append(table.AwayTeam, ev.Event.AwayTeam)
		table.HomeWin = append(table.HomeWin, odds(ev.Event.Home.Price))
		table.Draw = append(table.Draw, odds(ev.Event.Draw.Price))
		table.AwayWin = append(table.AwayWin, odds(ev.Event.Away.Price))

		alloc := ev.ThreeWay.Allocation
		if !ev.ThreeWay.Possible || alloc == nil {
			table.HomeStake = append(table.HomeStake, Placeholder)
			table.DrawStake = append(table.DrawStake, Placeholder)
			table.AwayStake = append(table.AwayStake, Placeholder)
			table.Return = append(table.Return, Placeholder)
			table.AnnualisedReturn = append(table.AnnualisedReturn, Placeholder)
			continue
		}

		table.HomeStake = append(table.HomeStake, stake(alloc.HomeStake))
		table.DrawStake = append(table.DrawStake, stake(alloc.DrawStake))
		table.AwayStake = append(table.AwayStake, stake(alloc.AwayStake))
		table.Return = append(table.Return, percent(alloc.GuaranteedReturnPct))
		table.AnnualisedReturn = append(table.AnnualisedReturn, percent(alloc.AnnualizedReturnPct))
	}

	return table
}

// TwoWayTables builds one binary arbitrage table per event
func (f *Formatter) TwoWayTables(events []models.AnalyzedEvent) []MatchTable {
	tables := make([]MatchTable, 0, len(events))

	for _, ev := range events {
		var table TwoWayTable
		for _, outcome := range models.AllOutcomes {
			quote := ev.Event.Quote(outcome)
			table.Team = append(table.Team, ev.Event.TeamLabel(outcome))
			table.YesOdds = append(table.YesOdds, odds(quote.Price))

			if !quote.ConversePrice.Valid {
				table.NoOdds = append(table.NoOdds, Placeholder)
			} else {
				table.NoOdds = append(table.NoOdds, odds(quote.ConversePrice.Decimal))
			}

			result, ok := ev.TwoWay[outcome]
			if !ok || !result.Possible || result.Allocation == nil {
				table.YesStake = append(table.YesStake, Placeholder)
				table.NoStake = append(table.NoStake, Placeholder)
				table.Return = append(table.Return, Placeholder)
				continue
			}

			table.YesStake = append(table.YesStake, stake(result.Allocation.YesStake))
			table.NoStake = append(table.NoStake, stake(result.Allocation.NoStake))
			table.Return = append(table.Return, percent(result.Allocation.ReturnPct))
		}

		tables = append(tables, MatchTable{
			EventID:   ev.Event.ID,
			MatchName: matchName(ev.Event.HomeTeam, ev.Event.AwayTeam),
			Table:     table,
		})
	}

	return tables
}

// BookmakerBreakdown lays out every bookmaker's head-to-head prices for an
// event, flagging the highest price in each outcome row.
func (f *Formatter) BookmakerBreakdown(raw models.RawEvent) DetailTable {
	detail := DetailTable{
		EventID:    raw.ID,
		MatchName:  matchName(raw.HomeTeam, raw.AwayTeam),
		Bookmakers: make([]string, 0, len(raw.Bookmakers)),
	}

	names := [3]string{raw.HomeTeam, models.DrawOutcomeName, raw.AwayTeam}
	prices := make([][3]decimal.NullDecimal, 0, len(raw.Bookmakers))

	for _, bookmaker := range raw.Bookmakers {
		title := bookmaker.Title
		if title == "" {
			title = bookmaker.Key
		}
		detail.Bookmakers = append(detail.Bookmakers, title)

		var row [3]decimal.NullDecimal
		for _, market := range bookmaker.Markets {
			if market.Key != models.H2HMarket {
				continue
			}
			for _, offered := range market.Outcomes {
				for i, name := range names {
					if strings.EqualFold(strings.TrimSpace(offered.Name), name) && offered.Price.Valid {
						row[i] = decimal.NewNullDecimal(offered.Price.Value)
					}
				}
			}
		}
		prices = append(prices, row)
	}

	for i, name := range names {
		best := decimal.NullDecimal{}
		for _, row := range prices {
			if row[i].Valid && (!best.Valid || row[i].Decimal.GreaterThan(best.Decimal)) {
				best = row[i]
			}
		}

		detailRow := DetailRow{
			Outcome: name,
			Prices:  make([]string, 0, len(prices)),
			Best:    make([]bool, 0, len(prices)),
		}
		for _, row := range prices {
			if !row[i].Valid {
				detailRow.Prices = append(detailRow.Prices, Placeholder)
				detailRow.Best = append(detailRow.Best, false)
				continue
			}
			detailRow.Prices = append(detailRow.Prices, odds(row[i].Decimal))
			detailRow.Best = append(detailRow.Best, row[i].Decimal.Equal(best.Decimal))
		}
		detail.Rows = append(detail.Rows, detailRow)
	}

	return detail
}

func matchName(home, away string) string {
	return fmt.Sprintf("%s vs %s", home, away)
}

func odds(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func stake(d decimal.Decimal) string {
	return d.StringFixed(3)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(3) + " %"
}
