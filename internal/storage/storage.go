// Package storage persists deals. Three backends share one contract: an
// in-memory store seeded with sample deals, SQLite, and Firestore.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// Store is the persistence contract used by ingestion, sessions and the API.
//
// GetDealByID returns (nil, nil) for an unknown id. UpdateDeal refreshes content
// and engagement counters but never touches status, which only UpdateStatus
// changes. DeleteDeal of an unknown id succeeds. TrimOldDeals treats a negative
// limit as zero.
type Store interface {
	ListDeals(ctx context.Context) ([]models.Deal, error)
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)
	TryCreateDeal(ctx context.Context, deal models.Deal) error
	UpdateDeal(ctx context.Context, deal models.Deal) error
	UpdateStatus(ctx context.Context, id string, status models.Status, updatedAt time.Time) error
	DeleteDeal(ctx context.Context, id string) error
	SaveSentiment(ctx context.Context, analysis models.SentimentAnalysis) error
	TrimOldDeals(ctx context.Context, maxDeals int) error
	LastIngest(ctx context.Context) (time.Time, error)
	SetLastIngest(ctx context.Context, t time.Time) error
	Close() error
}

// sortNewestFirst orders deals by creation time, newest first, breaking ties by id.
func sortNewestFirst(deals []models.Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		if !deals[i].CreatedAt.Equal(deals[j].CreatedAt) {
			return deals[i].CreatedAt.After(deals[j].CreatedAt)
		}
		return deals[i].ID < deals[j].ID
	})
}
