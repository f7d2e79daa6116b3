package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/cache"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/metrics"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/arbitrage"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/merger"
	"github.com/cypherlabdev/odds-arbitrage-service/pkg/normalizer"
)

// Snapshot views
const (
	ViewBookmakers = "bookmakers"
	ViewMerged     = "merged"
)

var (
	// ErrNoSnapshot is returned before the first successful cycle
	ErrNoSnapshot = errors.New("no snapshot available yet")
	// ErrEventNotFound is returned for an id absent from the latest snapshot
	ErrEventNotFound = errors.New("event not found")
)

// Dependencies wires the service. Market, Publisher and Archiver are optional.
type Dependencies struct {
	Normalizer *normalizer.Normalizer
	Merger     *merger.Merger
	Engine     *arbitrage.Engine
	Fetcher    FeedFetcher
	Market     MarketSource
	Cache      Cache
	Publisher  Publisher
	Archiver   Archiver
	Metrics    *metrics.Metrics
}

// ArbitrageService runs the fetch, normalize, merge and analyse pipeline
// and serves its latest result.
type ArbitrageService struct {
	normalizer *normalizer.Normalizer
	merger     *merger.Merger
	engine     *arbitrage.Engine
	fetcher    FeedFetcher
	market     MarketSource
	cache      Cache
	publisher  Publisher
	archiver   Archiver
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	// storeMu orders the latest swap with its cache write so an older
	// cycle finishing late cannot overwrite a newer one in Redis.
	storeMu sync.Mutex
	mu      sync.RWMutex
	latest  *models.Snapshot
}

// NewArbitrageService creates a new arbitrage service
func NewArbitrageService(deps Dependencies, logger zerolog.Logger) *ArbitrageService {
	return &ArbitrageService{
		normalizer: deps.Normalizer,
		merger:     deps.Merger,
		engine:     deps.Engine,
		fetcher:    deps.Fetcher,
		market:     deps.Market,
		cache:      deps.Cache,
		publisher:  deps.Publisher,
		archiver:   deps.Archiver,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "arbitrage_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle fetches the bookmaker feed and processes it
func (s *ArbitrageService) RunCycle(ctx context.Context) (*models.Snapshot, error) {
	events, err := s.fetcher.FetchOdds(ctx)
	if err != nil {
		s.metrics.CyclesTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to fetch bookmaker feed: %w", err)
	}

	return s.ProcessFeed(ctx, events, s.now())
}

// ProcessFeed runs one cycle over an already fetched feed. Per-event
// failures land in Snapshot.Skipped. A market failure degrades the merged
// view to the bookmaker view. Cache, publish and archive failures are
// logged and never fail the cycle.
func (s *ArbitrageService) ProcessFeed(ctx context.Context, events []models.RawEvent, fetchedAt time.Time) (*models.Snapshot, error) {
	start := time.Now()
	cycleID := uuid.New()

	log := s.logger.With().Str("cycle_id", cycleID.String()).Logger()

	records, skipped := s.normalizer.Normalize(events)
	bookmakerView, rejected := s.engine.Analyze(records)
	skipped = appendSkipped(skipped, rejected)

	mergedRecords := records
	var marketUpdatedAt time.Time
	if s.market != nil {
		snap, err := s.market.Snapshot(ctx, records)
		switch {
		case err == nil:
			mergedRecords = s.merger.Merge(records, snap)
			marketUpdatedAt = snap.FetchedAt
		case ctx.Err() != nil:
			s.metrics.CyclesTotal.WithLabelValues(metrics.ResultError).Inc()
			return nil, fmt.Errorf("cycle canceled: %w", ctx.Err())
		default:
			log.Warn().Err(err).Msg("market snapshot unavailable, merged view falls back to bookmakers")
		}
	}
	mergedView, rejected := s.engine.Analyze(mergedRecords)
	skipped = appendSkipped(skipped, rejected)

	snapshot := &models.Snapshot{
		CycleID:             cycleID,
		GeneratedAt:         s.now(),
		BookmakersUpdatedAt: fetchedAt,
		MarketUpdatedAt:     marketUpdatedAt,
		RawEvents:           events,
		Bookmakers:          bookmakerView,
		Merged:              mergedView,
		Skipped:             skipped,
	}

	s.store(ctx, log, snapshot)

	s.publish(ctx, log, snapshot)
	s.archive(ctx, log, snapshot)
	s.record(snapshot, time.Since(start))

	log.Info().
		Int("raw_events", len(events)).
		Int("analyzed", len(mergedView)).
		Int("skipped", len(skipped)).
		Int("three_way_bookmakers", countThreeWay(bookmakerView)).
		Int("three_way_merged", countThreeWay(mergedView)).
		Int("two_way", countTwoWay(mergedView)).
		Dur("duration", time.Since(start)).
		Msg("cycle complete")

	return snapshot, nil
}

// store makes the snapshot the served one unless a cycle over a newer feed
// already completed.
func (s *ArbitrageService) store(ctx context.Context, log zerolog.Logger, snapshot *models.Snapshot) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	s.mu.Lock()
	current := s.latest
	if current != nil && snapshot.BookmakersUpdatedAt.Before(current.BookmakersUpdatedAt) {
		s.mu.Unlock()
		log.Warn().
			Str("served_cycle_id", current.CycleID.String()).
			Time("feed_fetched_at", snapshot.BookmakersUpdatedAt).
			Msg("snapshot superseded by a newer feed, not serving it")
		return
	}
	s.latest = snapshot
	s.mu.Unlock()

	if err := s.cache.SetSnapshot(ctx, snapshot); err != nil {
		log.Warn().Err(err).Msg("failed to cache snapshot")
	}
}

func (s *ArbitrageService) publish(ctx context.Context, log zerolog.Logger, snapshot *models.Snapshot) {
	if s.publisher == nil {
		return
	}

	messages := BuildOpportunities(snapshot)
	if len(messages) == 0 {
		return
	}

	if err := s.publisher.Publish(ctx, messages); err != nil {
		s.metrics.PublishedMessagesTotal.WithLabelValues(metrics.ResultError).Add(float64(len(messages)))
		log.Warn().Err(err).Int("count", len(messages)).Msg("failed to publish opportunities")
		return
	}
	s.metrics.PublishedMessagesTotal.WithLabelValues(metrics.ResultSuccess).Add(float64(len(messages)))
}

func (s *ArbitrageService) archive(ctx context.Context, log zerolog.Logger, snapshot *models.Snapshot) {
	if s.archiver == nil {
		return
	}

	if err := s.archiver.ArchiveFeed(ctx, snapshot.CycleID, snapshot.BookmakersUpdatedAt, snapshot.RawEvents); err != nil {
		log.Warn().Err(err).Msg("failed to archive raw feed")
	}
}

func (s *ArbitrageService) record(snapshot *models.Snapshot, elapsed time.Duration) {
	s.metrics.CyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.metrics.CycleDurationSeconds.Observe(elapsed.Seconds())

	for _, sk := range snapshot.Skipped {
		s.metrics.EventsSkippedTotal.WithLabelValues(sk.Reason).Inc()
	}

	s.metrics.Opportunities.WithLabelValues(ViewBookmakers, string(models.OpportunityThreeWay)).
		Set(float64(countThreeWay(snapshot.Bookmakers)))
	s.metrics.Opportunities.WithLabelValues(ViewMerged, string(models.OpportunityThreeWay)).
		Set(float64(countThreeWay(snapshot.Merged)))
	s.metrics.Opportunities.WithLabelValues(ViewMerged, string(models.OpportunityTwoWay)).
		Set(float64(countTwoWay(snapshot.Merged)))
}

// GetSnapshot returns the snapshot of the latest completed cycle. Redis is
// only consulted before this process has completed a cycle of its own.
func (s *ArbitrageService) GetSnapshot(ctx context.Context) (*models.Snapshot, error) {
	if latest := s.currentSnapshot(); latest != nil {
		return latest, nil
	}

	cached, err := s.cache.GetSnapshot(ctx)
	if err == nil && cached != nil {
		return cached, nil
	}

	// Log cache errors (but don't fail on them)
	if err != nil && !isCacheMiss(err) {
		s.logger.Warn().Err(err).Msg("cache error reading snapshot")
	}

	return nil, ErrNoSnapshot
}

// GetEvent returns one merged event from the same snapshot GetSnapshot serves
func (s *ArbitrageService) GetEvent(ctx context.Context, eventID string) (*models.AnalyzedEvent, error) {
	if latest := s.currentSnapshot(); latest != nil {
		return findEvent(latest, eventID)
	}

	cached, err := s.cache.GetEvent(ctx, eventID)
	if err == nil && cached != nil {
		s.logger.Debug().Str("event_id", eventID).Msg("cache hit for event")
		return cached, nil
	}

	if err != nil && !isCacheMiss(err) {
		s.logger.Warn().Err(err).Str("event_id", eventID).Msg("cache error reading event")
	}

	snapshot, err := s.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return findEvent(snapshot, eventID)
}

func (s *ArbitrageService) currentSnapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func findEvent(snapshot *models.Snapshot, eventID string) (*models.AnalyzedEvent, error) {
	ev, ok := snapshot.FindMerged(eventID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return &ev, nil
}

// BuildOpportunities turns every possible result of the merged view into a
// message. Each merged price is at least the bookmaker price, so the merged
// view covers every bookmaker-only opportunity.
func BuildOpportunities(snapshot *models.Snapshot) []models.OpportunityMessage {
	var out []models.OpportunityMessage

	for _, ev := range snapshot.Merged {
		rec := ev.Event

		if ev.ThreeWay.Possible && ev.ThreeWay.Allocation != nil {
			alloc := ev.ThreeWay.Allocation
			msg := newOpportunity(snapshot, rec, models.OpportunityThreeWay)
			for _, o := range models.AllOutcomes {
				msg.Prices[o.String()] = rec.Quote(o).Price
				msg.Stakes[o.String()] = alloc.Stake(o)
			}
			msg.ReturnPct = alloc.GuaranteedReturnPct
			out = append(out, msg)
		}

		for _, o := range models.AllOutcomes {
			res, ok := ev.TwoWay[o]
			if !ok || !res.Possible || res.Allocation == nil {
				continue
			}
			q := rec.Quote(o)
			outcome := o

			msg := newOpportunity(snapshot, rec, models.OpportunityTwoWay)
			msg.Outcome = &outcome
			msg.Prices["yes"] = q.Price
			if q.ConversePrice.Valid {
				msg.Prices["no"] = q.ConversePrice.Decimal
			}
			msg.Stakes["yes"] = res.Allocation.YesStake
			msg.Stakes["no"] = res.Allocation.NoStake
			msg.ReturnPct = res.Allocation.ReturnPct
			out = append(out, msg)
		}
	}

	return out
}

func newOpportunity(snapshot *models.Snapshot, rec models.EventRecord, kind models.OpportunityKind) models.OpportunityMessage {
	return models.OpportunityMessage{
		CycleID:    snapshot.CycleID,
		EventID:    rec.ID,
		Kind:       kind,
		HomeTeam:   rec.HomeTeam,
		AwayTeam:   rec.AwayTeam,
		Date:       rec.Date,
		Prices:     make(map[string]decimal.Decimal, 3),
		Stakes:     make(map[string]decimal.Decimal, 3),
		DetectedAt: snapshot.GeneratedAt,
	}
}

func isCacheMiss(err error) bool {
	return errors.Is(err, cache.ErrNotFound)
}

func countThreeWay(events []models.AnalyzedEvent) int {
	n := 0
	for _, ev := range events {
		if ev.ThreeWay.Possible {
			n++
		}
	}
	return n
}

func countTwoWay(events []models.AnalyzedEvent) int {
	n := 0
	for _, ev := range events {
		for _, res := range ev.TwoWay {
			if res.Possible {
				n++
			}
		}
	}
	return n
}

// appendSkipped adds the events in more not already present in skipped
func appendSkipped(skipped, more []models.SkippedEvent) []models.SkippedEvent {
	for _, candidate := range more {
		seen := false
		for _, existing := range skipped {
			if existing.EventID == candidate.EventID {
				seen = true
				break
			}
		}
		if !seen {
			skipped = append(skipped, candidate)
		}
	}
	return skipped
}
