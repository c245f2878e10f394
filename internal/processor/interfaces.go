package processor

import (
	"context"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// DealStore abstracts the storage layer for deal data.
type DealStore interface {
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)
	TryCreateDeal(ctx context.Context, deal models.Deal) error
	UpdateDeal(ctx context.Context, deal models.Deal) error
	TrimOldDeals(ctx context.Context, maxDeals int) error
	SetLastIngest(ctx context.Context, t time.Time) error
}

// Classifier assigns category IDs from a deal title.
type Classifier interface {
	Classify(title string) []string
}

// DealValidator checks a deal before it is stored.
type DealValidator interface {
	ValidateDeal(deal models.Deal) error
}
