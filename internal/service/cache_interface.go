package service

import (
	"context"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

//go:generate mockgen -source=cache_interface.go -destination=../mocks/mock_cache.go -package=mocks

// Cache is an interface that abstracts snapshot storage
// This allows for easier testing and mocking
type Cache interface {
	SetSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	GetSnapshot(ctx context.Context) (*models.Snapshot, error)
	GetEvent(ctx context.Context, eventID string) (*models.AnalyzedEvent, error)
	Ping(ctx context.Context) error
	Close() error
}
