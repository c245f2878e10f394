package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

//go:embed seed.json
var seedJSON []byte

type seedDeal struct {
	models.Deal
	AgeHours float64 `json:"age_hours"`
}

// SeedDeals decodes the embedded sample deals, dating them relative to now.
func SeedDeals(now time.Time) ([]models.Deal, error) {
	var seeds []seedDeal
	if err := json.Unmarshal(seedJSON, &seeds); err != nil {
		return nil, fmt.Errorf("failed to decode seed deals: %w", err)
	}
	deals := make([]models.Deal, 0, len(seeds))
	for _, s := range seeds {
		d := s.Deal
		d.CreatedAt = now.Add(-time.Duration(s.AgeHours * float64(time.Hour)))
		d.UpdatedAt = d.CreatedAt
		d.ScrapedAt = d.CreatedAt
		if d.Sentiment != nil {
			d.Sentiment.AnalyzedAt = now
		}
		deals = append(deals, d)
	}
	return deals, nil
}

// Memory keeps deals in a map. It backs local runs and tests.
type Memory struct {
	mu         sync.RWMutex
	deals      map[string]models.Deal
	lastIngest time.Time
}

// NewMemory returns a store holding deals.
func NewMemory(deals ...models.Deal) *Memory {
	m := &Memory{deals: make(map[string]models.Deal, len(deals))}
	for _, d := range deals {
		m.deals[d.ID] = cloneDeal(d)
	}
	return m
}

// NewSeededMemory returns a store holding the embedded sample deals.
func NewSeededMemory(now time.Time) (*Memory, error) {
	deals, err := SeedDeals(now)
	if err != nil {
		return nil, err
	}
	return NewMemory(deals...), nil
}

func (m *Memory) ListDeals(_ context.Context) ([]models.Deal, error) {
	m.mu.RLock()
	out := make([]models.Deal, 0, len(m.deals))
	for _, d := range m.deals {
		out = append(out, cloneDeal(d))
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) GetDealByID(_ context.Context, id string) (*models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	d = cloneDeal(d)
	return &d, nil
}

func (m *Memory) TryCreateDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[deal.ID]; ok {
		return models.ErrDealExists
	}
	m.deals[deal.ID] = cloneDeal(deal)
	return nil
}

func (m *Memory) UpdateDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.deals[deal.ID]
	if !ok {
		return models.ErrDealNotFound
	}
	m.deals[deal.ID] = mergeContent(existing, deal)
	return nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status models.Status, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return models.ErrDealNotFound
	}
	d.Status = status
	d.UpdatedAt = updatedAt
	m.deals[id] = d
	return nil
}

func (m *Memory) DeleteDeal(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.deals, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SaveSentiment(_ context.Context, analysis models.SentimentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[analysis.DealID]
	if !ok {
		return models.ErrDealNotFound
	}
	a := analysis
	d.Sentiment = &a
	m.deals[analysis.DealID] = d
	return nil
}

func (m *Memory) TrimOldDeals(ctx context.Context, maxDeals int) error {
	maxDeals = max(maxDeals, 0)
	deals, _ := m.ListDeals(ctx)
	if len(deals) <= maxDeals {
		return nil
	}
	m.mu.Lock()
	for _, d := range deals[maxDeals:] {
		delete(m.deals, d.ID)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) LastIngest(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastIngest, nil
}

func (m *Memory) SetLastIngest(_ context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	m.mu.Lock()
	m.lastIngest = t
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// mergeContent copies the scraped fields of update onto existing. Status,
// creation time and sentiment belong to other writers.
func mergeContent(existing, update models.Deal) models.Deal {
	existing.Title = update.Title
	existing.Description = update.Description
	existing.URL = update.URL
	existing.SourceURL = update.SourceURL
	existing.Upvotes = update.Upvotes
	existing.Comments = update.Comments
	existing.Views = update.Views
	existing.Category = update.Category
	existing.Technology = update.Technology
	existing.UpdatedAt = update.UpdatedAt
	existing.ScrapedAt = update.ScrapedAt
	return existing
}

func cloneDeal(d models.Deal) models.Deal {
	if d.Sentiment != nil {
		s := *d.Sentiment
		d.Sentiment = &s
	}
	return d
}

var _ Store = (*Memory)(nil)
