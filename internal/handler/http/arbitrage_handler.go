package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/service"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/formatter"
)

// ArbitrageHandler serves the latest arbitrage snapshot over HTTP
type ArbitrageHandler struct {
	reader    service.SnapshotReader
	formatter *formatter.Formatter
	logger    zerolog.Logger
}

// NewArbitrageHandler creates a new arbitrage HTTP handler
func NewArbitrageHandler(reader service.SnapshotReader, logger zerolog.Logger) *ArbitrageHandler {
	return &ArbitrageHandler{
		reader:    reader,
		formatter: formatter.NewFormatter(),
		logger:    logger.With().Str("component", "arbitrage_handler").Logger(),
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *ArbitrageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/arbitrage", h.handleThreeWay)
	mux.HandleFunc("GET /api/v1/arbitrage/two-way", h.handleTwoWay)
	mux.HandleFunc("GET /api/v1/events", h.handleListEvents)
	mux.HandleFunc("GET /api/v1/events/{id}", h.handleGetEvent)
	mux.HandleFunc("GET /api/v1/events/{id}/bookmakers", h.handleBookmakers)
	mux.HandleFunc("GET /api/v1/status", h.handleStatus)
}

// ThreeWayResponse wraps the three-way table with the view it was built from
type ThreeWayResponse struct {
	View    string                  `json:"view"`
	CycleID uuid.UUID               `json:"cycle_id"`
	Count   int                     `json:"count"`
	Table   formatter.ThreeWayTable `json:"table"`
}

// EventSummary is one row of the event listing
type EventSummary struct {
	ID                string `json:"id"`
	Date              string `json:"date"`
	HomeTeam          string `json:"home_team"`
	AwayTeam          string `json:"away_team"`
	ThreeWayPossible  bool   `json:"three_way_possible"`
	TwoWayOpportunity int    `json:"two_way_opportunities"`
}

// StatusResponse describes the freshness of the served snapshot
type StatusResponse struct {
	CycleID             uuid.UUID  `json:"cycle_id"`
	GeneratedAt         time.Time  `json:"generated_at"`
	BookmakersUpdatedAt time.Time  `json:"bookmakers_updated_at"`
	MarketUpdatedAt     *time.Time `json:"market_updated_at"`
	Events              int        `json:"events"`
	Skipped             int        `json:"skipped"`
}

// handleThreeWay handles GET /api/v1/arbitrage?view=bookmakers|merged
func (h *ArbitrageHandler) handleThreeWay(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	if view == "" {
		view = service.ViewMerged
	}
	if view != service.ViewMerged && view != service.ViewBookmakers {
		h.errorResponse(w, http.StatusBadRequest, "view must be one of: bookmakers, merged")
		return
	}

	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	events := snapshot.Merged
	if view == service.ViewBookmakers {
		events = snapshot.Bookmakers
	}

	table := h.formatter.ThreeWayTable(events)
	h.jsonResponse(w, http.StatusOK, ThreeWayResponse{
		View:    view,
		CycleID: snapshot.CycleID,
		Count:   table.Len(),
		Table:   table,
	})
}

// handleTwoWay handles GET /api/v1/arbitrage/two-way
func (h *ArbitrageHandler) handleTwoWay(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	tables := h.formatter.TwoWayTables(snapshot.Merged)
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"cycle_id": snapshot.CycleID,
		"count":    len(tables),
		"matches":  tables,
	})
}

// handleListEvents handles GET /api/v1/events
func (h *ArbitrageHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	events := make([]EventSummary, 0, len(snapshot.Merged))
	for _, ev := range snapshot.Merged {
		twoWay := 0
		for _, res := range ev.TwoWay {
			if res.Possible {
				twoWay++
			}
		}
		events = append(events, EventSummary{
			ID:                ev.Event.ID,
			Date:              ev.Event.Date,
			HomeTeam:          ev.Event.HomeTeam,
			AwayTeam:          ev.Event.AwayTeam,
			ThreeWayPossible:  ev.ThreeWay.Possible,
			TwoWayOpportunity: twoWay,
		})
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"count":   len(events),
		"events":  events,
		"skipped": snapshot.Skipped,
	})
}

// handleGetEvent handles GET /api/v1/events/{id}
func (h *ArbitrageHandler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	event, err := h.reader.GetEvent(r.Context(), eventID)
	if err != nil {
		h.serviceError(w, err, eventID)
		return
	}

	h.jsonResponse(w, http.StatusOK, event)
}

// handleBookmakers handles GET /api/v1/events/{id}/bookmakers
func (h *ArbitrageHandler) handleBookmakers(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	raw, found := snapshot.FindRaw(eventID)
	if !found {
		h.errorResponse(w, http.StatusNotFound, "event not found")
		return
	}

	h.jsonResponse(w, http.StatusOK, h.formatter.BookmakerBreakdown(raw))
}

// handleStatus handles GET /api/v1/status
func (h *ArbitrageHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	status := StatusResponse{
		CycleID:             snapshot.CycleID,
		GeneratedAt:         snapshot.GeneratedAt,
		BookmakersUpdatedAt: snapshot.BookmakersUpdatedAt,
		Events:              len(snapshot.Merged),
		Skipped:             len(snapshot.Skipped),
	}
	if !snapshot.MarketUpdatedAt.IsZero() {
		marketUpdatedAt := snapshot.MarketUpdatedAt
		status.MarketUpdatedAt = &marketUpdatedAt
	}

	h.jsonResponse(w, http.StatusOK, status)
}

// snapshot loads the latest snapshot, writing the error response itself on failure
func (h *ArbitrageHandler) snapshot(w http.ResponseWriter, r *http.Request) (*models.Snapshot, bool) {
	snapshot, err := h.reader.GetSnapshot(r.Context())
	if err != nil {
		h.serviceError(w, err, "")
		return nil, false
	}
	return snapshot, true
}

// serviceError maps service errors onto HTTP status codes
func (h *ArbitrageHandler) serviceError(w http.ResponseWriter, err error, eventID string) {
	switch {
	case errors.Is(err, service.ErrNoSnapshot):
		h.errorResponse(w, http.StatusServiceUnavailable, "no arbitrage snapshot available yet")
	case errors.Is(err, service.ErrEventNotFound):
		h.logger.Debug().Str("event_id", eventID).Msg("event not found")
		h.errorResponse(w, http.StatusNotFound, "event not found")
	default:
		h.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to read snapshot")
		h.errorResponse(w, http.StatusInternalServerError, "failed to read snapshot")
	}
}

// jsonResponse writes a JSON response
func (h *ArbitrageHandler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes a JSON error response
func (h *ArbitrageHandler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
