package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

//go:generate mockgen -source=source_interface.go -destination=../mocks/mock_sources.go -package=mocks

// FeedFetcher pulls the raw bookmaker feed
type FeedFetcher interface {
	FetchOdds(ctx context.Context) ([]models.RawEvent, error)
}

// MarketSource fetches second-source quotes for a set of normalized events
type MarketSource interface {
	Snapshot(ctx context.Context, records []models.EventRecord) (models.MarketSnapshot, error)
}

// Publisher emits detected opportunities downstream
type Publisher interface {
	Publish(ctx context.Context, messages []models.OpportunityMessage) error
}

// Archiver keeps a copy of each raw feed
type Archiver interface {
	ArchiveFeed(ctx context.Context, cycleID uuid.UUID, fetchedAt time.Time, events []models.RawEvent) error
}

// FeedProcessor runs the pipeline over an already fetched feed
type FeedProcessor interface {
	ProcessFeed(ctx context.Context, events []models.RawEvent, fetchedAt time.Time) (*models.Snapshot, error)
}

// CycleRunner fetches and processes one feed
type CycleRunner interface {
	RunCycle(ctx context.Context) (*models.Snapshot, error)
}

// SnapshotReader serves the latest results
type SnapshotReader interface {
	GetSnapshot(ctx context.Context) (*models.Snapshot, error)
	GetEvent(ctx context.Context, eventID string) (*models.AnalyzedEvent, error)
}
