// Package processor ingests scraped deals into the store.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/config"
	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/scraper"
	"github.com/pauljones0/dealanalyzer/internal/trend"
)

type Processor interface {
	ProcessDeals(ctx context.Context) error
}

type DealProcessor struct {
	store      DealStore
	notifier   notifier.Notifier
	scraper    scraper.Scraper
	classifier Classifier
	validator  DealValidator
	maxDeals   int
	now        func() time.Time
}

// New wires a processor. classifier and validator may be nil.
func New(store DealStore, n notifier.Notifier, s scraper.Scraper, c Classifier, v DealValidator, cfg *config.Config) *DealProcessor {
	if n == nil {
		n = notifier.Log{}
	}
	maxDeals := cfg.MaxStoredDeals
	if maxDeals <= 0 {
		maxDeals = 500
	}
	return &DealProcessor{
		store:      store,
		notifier:   n,
		scraper:    s,
		classifier: c,
		validator:  v,
		maxDeals:   maxDeals,
		now:        time.Now,
	}
}

// generateDealID creates a stable deal identity based on the thread's publish time.
// This survives title and URL edits by the post author.
func generateDealID(published time.Time) string {
	hash := sha256.Sum256([]byte(published.Format(time.RFC3339Nano)))
	return hex.EncodeToString(hash[:])
}

func validListing(deal models.Deal) bool {
	return strings.TrimSpace(deal.Title) != "" && strings.TrimSpace(deal.SourceURL) != "" && !deal.CreatedAt.IsZero()
}

// ProcessDeals runs one ingestion pass: new threads become pending deals and
// known threads get their counters refreshed. Moderation status is never changed here.
func (p *DealProcessor) ProcessDeals(ctx context.Context) error {
	scrapedDeals, err := p.scraper.ScrapeDealList(ctx)
	if err != nil {
		return fmt.Errorf("failed to scrape hot deals list: %w", err)
	}
	slog.Info("Successfully scraped deal list", "count", len(scrapedDeals))

	var dealsToDetail []*models.Deal
	existingDeals := make(map[string]*models.Deal)

	for i := range scrapedDeals {
		deal := &scrapedDeals[i]
		if !validListing(*deal) {
			continue
		}
		deal.ID = generateDealID(deal.CreatedAt)

		existing, err := p.store.GetDealByID(ctx, deal.ID)
		if err != nil {
			slog.Warn("Failed to check deal existence, will scrape details", "id", deal.ID, "error", err)
			dealsToDetail = append(dealsToDetail, deal)
			continue
		}
		if existing == nil {
			dealsToDetail = append(dealsToDetail, deal)
			continue
		}
		existingDeals[deal.ID] = existing

		if existing.Title != deal.Title || existing.SourceURL != deal.SourceURL {
			dealsToDetail = append(dealsToDetail, deal)
		} else {
			// Unchanged thread. Reuse stored details so the update below sees no diff.
			deal.URL = existing.URL
			deal.Description = existing.Description
		}
	}

	if len(dealsToDetail) > 0 {
		slog.Info("Fetching details for deals", "count", len(dealsToDetail))
		p.scraper.FetchDealDetails(ctx, dealsToDetail)
	} else {
		slog.Info("No deals needed detail scraping")
	}

	var newCount, updatedCount int
	var errs []error

	for _, deal := range scrapedDeals {
		isNew, isUpdated, err := p.processSingleDeal(ctx, deal, existingDeals[deal.ID])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if isNew {
			newCount++
		}
		if isUpdated {
			updatedCount++
		}
	}

	// Trim old deals once per processing run instead of per-deal
	if newCount > 0 {
		if err := p.store.TrimOldDeals(ctx, p.maxDeals); err != nil {
			slog.Warn("Failed to trim old deals", "error", err)
		}
	}
	if err := p.store.SetLastIngest(ctx, p.now()); err != nil {
		slog.Warn("Failed to record ingest time", "error", err)
	}

	slog.Info("Finished processing", "new", newCount, "updated", updatedCount)
	if len(errs) > 0 {
		return fmt.Errorf("processed with errors: %w", errors.Join(errs...))
	}
	return nil
}

func (p *DealProcessor) processSingleDeal(ctx context.Context, deal models.Deal, existing *models.Deal) (isNew, isUpdated bool, err error) {
	if !validListing(deal) {
		slog.Debug("Skipping invalid deal", "title", deal.Title)
		return false, false, nil
	}
	if deal.ID == "" {
		deal.ID = generateDealID(deal.CreatedAt)
	}
	now := p.now()
	deal.UpdatedAt = now
	if deal.ScrapedAt.IsZero() {
		deal.ScrapedAt = now
	}

	if existing == nil {
		deal.Status = models.StatusPending
		if deal.Category == "" && p.classifier != nil {
			if ids := p.classifier.Classify(deal.Title); len(ids) > 0 {
				deal.Category = ids[0]
			}
		}
		if p.validator != nil {
			if err := p.validator.ValidateDeal(deal); err != nil {
				slog.Warn("Skipping deal that failed validation", "title", deal.Title, "error", err)
				return false, false, nil
			}
		}

		createErr := p.store.TryCreateDeal(ctx, deal)
		if createErr == nil {
			slog.Info("New deal added", "id", deal.ID, "title", deal.Title)
			p.announceIfHot(ctx, deal)
			return true, false, nil
		}

		// Race condition: another instance created it first
		if !errors.Is(createErr, models.ErrDealExists) {
			return false, false, fmt.Errorf("failed to create deal %s: %w", deal.Title, createErr)
		}
		existing, err = p.store.GetDealByID(ctx, deal.ID)
		if err != nil {
			return false, false, fmt.Errorf("error recovering from race for deal %s: %w", deal.ID, err)
		}
		if existing == nil {
			slog.Warn("Race condition anomaly: deal claimed to exist but returned nil", "id", deal.ID)
			return false, false, nil
		}
	}

	if !dealChanged(existing, &deal) {
		return false, false, nil
	}

	updated := *existing
	updated.Title = deal.Title
	updated.SourceURL = deal.SourceURL
	updated.Upvotes = deal.Upvotes
	updated.Comments = deal.Comments
	updated.Views = deal.Views
	if deal.URL != "" {
		updated.URL = deal.URL
	}
	if deal.Description != "" {
		updated.Description = deal.Description
	}
	updated.UpdatedAt = now
	updated.ScrapedAt = deal.ScrapedAt

	if err := p.store.UpdateDeal(ctx, updated); err != nil {
		return false, false, fmt.Errorf("failed to update deal %s: %w", updated.ID, err)
	}
	slog.Info("Updated deal", "id", updated.ID, "title", updated.Title)
	return false, true, nil
}

func (p *DealProcessor) announceIfHot(ctx context.Context, deal models.Deal) {
	if !trend.IsHot(trend.DealScore(deal, p.now())) {
		return
	}
	n := notifier.NewNotice(notifier.LevelSuccess, "Hot Deal", "A new deal is trending and awaits review.", &deal)
	if err := p.notifier.Notify(ctx, n); err != nil {
		slog.Warn("Failed to announce hot deal", "id", deal.ID, "error", err)
	}
}

func dealChanged(existing *models.Deal, scraped *models.Deal) bool {
	return existing.Upvotes != scraped.Upvotes ||
		existing.Comments != scraped.Comments ||
		existing.Views != scraped.Views ||
		existing.Title != scraped.Title ||
		existing.SourceURL != scraped.SourceURL ||
		(scraped.URL != "" && existing.URL != scraped.URL) ||
		(scraped.Description != "" && existing.Description != scraped.Description)
}
