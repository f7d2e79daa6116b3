package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/mocks"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/service"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/formatter"
)

// testHandlerSetup is a helper struct to hold test dependencies
type testHandlerSetup struct {
	reader *mocks.MockSnapshotReader
	mux    *http.ServeMux
	ctrl   *gomock.Controller
}

// setupTestHandler registers the handler on a fresh mux
func setupTestHandler(t *testing.T) *testHandlerSetup {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockSnapshotReader(ctrl)

	mux := http.NewServeMux()
	NewArbitrageHandler(reader, zerolog.Nop()).RegisterRoutes(mux)

	return &testHandlerSetup{reader: reader, mux: mux, ctrl: ctrl}
}

// cleanup cleans up test resources
func (s *testHandlerSetup) cleanup() {
	s.ctrl.Finish()
}

func (s *testHandlerSetup) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSnapshot() *models.Snapshot {
	bookmakerEvent := models.AnalyzedEvent{
		Event: models.EventRecord{
			ID:       "evt-ars",
			Date:     "2024-08-17",
			HomeTeam: "Arsenal",
			AwayTeam: "Chelsea",
			Home:     models.NewOutcomeQuote(dec("2.1"), "bet365"),
			Draw:     models.NewOutcomeQuote(dec("3.4"), "bet365"),
			Away:     models.NewOutcomeQuote(dec("3.6"), "bet365"),
		},
		ThreeWay: models.ThreeWayResult{Possible: false},
	}

	mergedEvent := bookmakerEvent
	mergedEvent.Event.Home = models.NewOutcomeQuote(dec("2.5"), "polymarket").WithConverse(dec("2"))
	mergedEvent.Event.Draw = models.NewOutcomeQuote(dec("4"), "polymarket")
	mergedEvent.Event.Away = models.NewOutcomeQuote(dec("4.5"), "polymarket")
	mergedEvent.ThreeWay = models.ThreeWayResult{
		Possible: true,
		Allocation: &models.ThreeWayAllocation{
			HomeStake:           dec("0.4585987261146497"),
			DrawStake:           dec("0.2866242038216561"),
			AwayStake:           dec("0.2547770700636943"),
			GuaranteedReturnPct: dec("14.64968152866242"),
			AnnualizedReturnPct: dec("122189.1234567"),
		},
	}
	mergedEvent.TwoWay = map[models.Outcome]models.TwoWayResult{
		models.OutcomeHome: {
			Possible: true,
			Allocation: &models.TwoWayAllocation{
				YesStake:  dec("0.4444444444"),
				NoStake:   dec("0.5555555556"),
				ReturnPct: dec("11.1111111111"),
			},
		},
	}

	return &models.Snapshot{
		CycleID:             uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		GeneratedAt:         time.Date(2024, 8, 16, 12, 0, 5, 0, time.UTC),
		BookmakersUpdatedAt: time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC),
		RawEvents: []models.RawEvent{{
			ID:       "evt-ars",
			HomeTeam: "Arsenal",
			AwayTeam: "Chelsea",
			Bookmakers: []models.RawBookmaker{{
				Key:   "bet365",
				Title: "Bet365",
				Markets: []models.RawMarket{{Key: models.H2HMarket, Outcomes: []models.RawOutcome{
					{Name: "Arsenal", Price: models.NewQuotedPrice(dec("2.1"))},
					{Name: "Draw", Price: models.NewQuotedPrice(dec("3.4"))},
					{Name: "Chelsea", Price: models.NewQuotedPrice(dec("3.6"))},
				}}},
			}},
		}},
		Bookmakers: []models.AnalyzedEvent{bookmakerEvent},
		Merged:     []models.AnalyzedEvent{mergedEvent},
		Skipped:    []models.SkippedEvent{{EventID: "evt-bad", Reason: "missing_outcome"}},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestThreeWay_DefaultsToMergedView(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/arbitrage")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ThreeWayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.ViewMerged, resp.View)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"2.50"}, resp.Table.HomeWin)
	assert.Equal(t, []string{"14.650 %"}, resp.Table.Return)
}

func TestThreeWay_BookmakersView(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/arbitrage?view=bookmakers")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThreeWayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.ViewBookmakers, resp.View)
	assert.Equal(t, []string{"2.10"}, resp.Table.HomeWin)
	assert.Equal(t, []string{formatter.Placeholder}, resp.Table.Return)
}

func TestThreeWay_InvalidView(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	rec := setup.get(t, "/api/v1/arbitrage?view=exchange")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "view must be one of")
}

func TestThreeWay_NoSnapshot(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(nil, service.ErrNoSnapshot)

	rec := setup.get(t, "/api/v1/arbitrage")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
}

func TestThreeWay_ReaderFailure(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(nil, errors.New("boom"))

	rec := setup.get(t, "/api/v1/arbitrage")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTwoWay(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/arbitrage/two-way")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int                    `json:"count"`
		Matches []formatter.MatchTable `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)

	match := resp.Matches[0]
	assert.Equal(t, "Arsenal vs Chelsea", match.MatchName)
	assert.Equal(t, []string{"Arsenal", "Draw", "Chelsea"}, match.Table.Team)
	assert.Equal(t, []string{"2.00", formatter.Placeholder, formatter.Placeholder}, match.Table.NoOdds)
	assert.Equal(t, []string{"11.111 %", formatter.Placeholder, formatter.Placeholder}, match.Table.Return)
}

func TestListEvents(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/events")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int                   `json:"count"`
		Events  []EventSummary        `json:"events"`
		Skipped []models.SkippedEvent `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, EventSummary{
		ID:                "evt-ars",
		Date:              "2024-08-17",
		HomeTeam:          "Arsenal",
		AwayTeam:          "Chelsea",
		ThreeWayPossible:  true,
		TwoWayOpportunity: 1,
	}, resp.Events[0])
	assert.Equal(t, []models.SkippedEvent{{EventID: "evt-bad", Reason: "missing_outcome"}}, resp.Skipped)
}

func TestGetEvent(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	event := testSnapshot().Merged[0]
	setup.reader.EXPECT().GetEvent(gomock.Any(), "evt-ars").Return(&event, nil)

	rec := setup.get(t, "/api/v1/events/evt-ars")

	require.Equal(t, http.StatusOK, rec.Code)

	var got models.AnalyzedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "evt-ars", got.Event.ID)
	assert.True(t, got.ThreeWay.Possible)
	require.Contains(t, got.TwoWay, models.OutcomeHome)
	assert.True(t, got.TwoWay[models.OutcomeHome].Possible)
}

func TestGetEvent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: evt-x", service.ErrEventNotFound), http.StatusNotFound},
		{"no snapshot", service.ErrNoSnapshot, http.StatusServiceUnavailable},
		{"unexpected", errors.New("decode failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := setupTestHandler(t)
			defer setup.cleanup()

			setup.reader.EXPECT().GetEvent(gomock.Any(), "evt-x").Return(nil, tt.err)

			rec := setup.get(t, "/api/v1/events/evt-x")

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestBookmakers(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/events/evt-ars/bookmakers")

	require.Equal(t, http.StatusOK, rec.Code)

	var detail formatter.DetailTable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "evt-ars", detail.EventID)
	assert.Equal(t, []string{"Bet365"}, detail.Bookmakers)
	require.Len(t, detail.Rows, 3)
	assert.Equal(t, []string{"3.40"}, detail.Rows[1].Prices)
}

func TestBookmakers_UnknownEvent(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/events/evt-missing/bookmakers")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event not found", decodeError(t, rec))
}

func TestStatus(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(testSnapshot(), nil)

	rec := setup.get(t, "/api/v1/status")

	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", status.CycleID.String())
	assert.Equal(t, 1, status.Events)
	assert.Equal(t, 1, status.Skipped)
	assert.Nil(t, status.MarketUpdatedAt)
	assert.True(t, status.BookmakersUpdatedAt.Equal(time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC)))
}

func TestStatus_MarketTimestamp(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	snapshot := testSnapshot()
	snapshot.MarketUpdatedAt = time.Date(2024, 8, 16, 12, 0, 3, 0, time.UTC)
	setup.reader.EXPECT().GetSnapshot(gomock.Any()).Return(snapshot, nil)

	rec := setup.get(t, "/api/v1/status")

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.MarketUpdatedAt)
	assert.True(t, status.MarketUpdatedAt.Equal(snapshot.MarketUpdatedAt))
}

func TestMethodNotAllowed(t *testing.T) {
	setup := setupTestHandler(t)
	defer setup.cleanup()

	rec := httptest.NewRecorder()
	setup.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/arbitrage", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
