package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/config"
	"github.com/pauljones0/dealanalyzer/internal/feed"
	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/validator"
)

// --- Mock implementations ---

type mockStore struct {
	mu          sync.Mutex
	deals       map[string]*models.Deal
	createErr   error
	updateErr   error
	trimCalled  bool
	updateCount int
	lastIngest  time.Time
}

func newMockStore() *mockStore {
	return &mockStore{deals: make(map[string]*models.Deal)}
}

func (m *mockStore) GetDealByID(_ context.Context, id string) (*models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deal, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	copy := *deal
	return &copy, nil
}

func (m *mockStore) TryCreateDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.deals[deal.ID]; exists {
		return models.ErrDealExists
	}
	copy := deal
	m.deals[deal.ID] = &copy
	return nil
}

func (m *mockStore) UpdateDeal(_ context.Context, deal models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updateCount++
	copy := deal
	m.deals[deal.ID] = &copy
	return nil
}

func (m *mockStore) TrimOldDeals(_ context.Context, _ int) error {
	m.trimCalled = true
	return nil
}

func (m *mockStore) SetLastIngest(_ context.Context, t time.Time) error {
	m.lastIngest = t
	return nil
}

type mockScraper struct {
	deals   []models.Deal
	err     error
	details map[string]string
}

func (m *mockScraper) ScrapeDealList(_ context.Context) ([]models.Deal, error) {
	out := make([]models.Deal, len(m.deals))
	copy(out, m.deals)
	return out, m.err
}

func (m *mockScraper) FetchDealDetails(_ context.Context, deals []*models.Deal) {
	for _, d := range deals {
		if u, ok := m.details[d.SourceURL]; ok {
			d.URL = u
		}
	}
}

func (m *mockScraper) FetchComments(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

var created = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func listing(title, url string, upvotes int) models.Deal {
	return models.Deal{Title: title, SourceURL: url, Upvotes: upvotes, CreatedAt: created, Status: models.StatusPending}
}

func newTestProcessor(store DealStore, n notifier.Notifier, s *mockScraper) *DealProcessor {
	cfg := &config.Config{MaxStoredDeals: 100}
	p := New(store, n, s, feed.NewCatalog(feed.DefaultCategories()), validator.New(), cfg)
	p.now = func() time.Time { return created.Add(time.Hour) }
	return p
}

// --- Tests ---

func TestProcessDeals_NewDeal(t *testing.T) {
	store := newMockStore()
	rec := notifier.NewRecorder(10)
	scraper := &mockScraper{
		deals:   []models.Deal{listing("Great Laptop Deal", "https://forums.redflagdeals.com/deal-1", 5)},
		details: map[string]string{"https://forums.redflagdeals.com/deal-1": "https://www.amazon.ca/dp/1"},
	}

	p := newTestProcessor(store, rec, scraper)
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}

	if len(store.deals) != 1 {
		t.Fatalf("Expected 1 deal in store, got %d", len(store.deals))
	}
	for id, d := range store.deals {
		if id != generateDealID(created) {
			t.Errorf("ID = %s, want hash of publish time", id)
		}
		if d.Status != models.StatusPending {
			t.Errorf("Status = %q, want pending", d.Status)
		}
		if d.URL != "https://www.amazon.ca/dp/1" {
			t.Errorf("URL = %q, want detail URL", d.URL)
		}
		if d.Category != "tech" {
			t.Errorf("Category = %q, want tech", d.Category)
		}
	}
	if !store.trimCalled {
		t.Error("Expected TrimOldDeals to be called after new deals")
	}
	if store.lastIngest.IsZero() {
		t.Error("Expected the ingest time to be recorded")
	}
	if len(rec.Recent()) != 0 {
		t.Error("A deal with 5 upvotes should not be announced")
	}
}

func TestProcessDeals_AnnouncesHotDeal(t *testing.T) {
	store := newMockStore()
	rec := notifier.NewRecorder(10)
	scraper := &mockScraper{deals: []models.Deal{listing("Hot TV", "https://forums.redflagdeals.com/tv", 120)}}

	p := newTestProcessor(store, rec, scraper)
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatal(err)
	}
	notices := rec.Recent()
	if len(notices) != 1 || notices[0].Title != "Hot Deal" {
		t.Errorf("Expected one hot deal notice, got %+v", notices)
	}
}

func TestProcessDeals_SkipsInvalidDeal(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{
		deals: []models.Deal{
			{Title: "", SourceURL: "", CreatedAt: created},                     // empty title and URL
			{Title: "   ", SourceURL: "  ", CreatedAt: created},                // whitespace only
			{Title: "No time", SourceURL: "https://forums.redflagdeals.com/x"}, // zero publish time
			{Title: "Bad URL", SourceURL: "not a url", CreatedAt: created.Add(time.Minute)},
			listing("Valid", "https://forums.redflagdeals.com/deal", 1),
		},
	}

	p := newTestProcessor(store, nil, scraper)
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}
	if len(store.deals) != 1 {
		t.Errorf("Expected 1 valid deal in store, got %d", len(store.deals))
	}
}

func TestProcessDeals_UpdateKeepsStatus(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{deals: []models.Deal{listing("Deal", "https://forums.redflagdeals.com/deal-1", 5)}}
	p := newTestProcessor(store, nil, scraper)

	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("First ProcessDeals() error = %v", err)
	}

	// An admin approves the deal between runs.
	id := generateDealID(created)
	store.deals[id].Status = models.StatusApproved

	scraper.deals = []models.Deal{listing("Deal", "https://forums.redflagdeals.com/deal-1", 20)}
	store.updateCount = 0
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("Second ProcessDeals() error = %v", err)
	}

	if store.updateCount != 1 {
		t.Errorf("Expected 1 UpdateDeal call, got %d", store.updateCount)
	}
	got := store.deals[id]
	if got.Upvotes != 20 {
		t.Errorf("Upvotes = %d, want 20", got.Upvotes)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("Status = %q, ingestion must not reset moderation", got.Status)
	}
}

func TestProcessDeals_UnchangedDealSkipped(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{deals: []models.Deal{listing("Same Deal", "https://forums.redflagdeals.com/deal-1", 5)}}
	p := newTestProcessor(store, nil, scraper)

	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("First ProcessDeals() error = %v", err)
	}

	store.updateCount = 0
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("Second ProcessDeals() error = %v", err)
	}
	if store.updateCount != 0 {
		t.Errorf("Expected 0 UpdateDeal calls for unchanged deal, got %d", store.updateCount)
	}
}

func TestProcessDeals_ScrapeError(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{err: errors.New("network error")}

	p := newTestProcessor(store, nil, scraper)
	if err := p.ProcessDeals(context.Background()); err == nil {
		t.Fatal("Expected error from ProcessDeals when scraper fails")
	}
	if !store.lastIngest.IsZero() {
		t.Error("A failed scrape should not record an ingest time")
	}
}

func TestProcessDeals_UpdateError(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{deals: []models.Deal{listing("Deal", "https://forums.redflagdeals.com/deal-1", 5)}}
	p := newTestProcessor(store, nil, scraper)
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.updateErr = errors.New("write failed")
	scraper.deals[0].Upvotes = 6
	if err := p.ProcessDeals(context.Background()); err == nil {
		t.Error("Expected UpdateDeal failure to surface")
	}
}

func TestProcessDeals_TrimOnlyOnNewDeals(t *testing.T) {
	store := newMockStore()
	scraper := &mockScraper{deals: []models.Deal{listing("Deal", "https://forums.redflagdeals.com/deal-1", 1)}}
	p := newTestProcessor(store, nil, scraper)

	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !store.trimCalled {
		t.Error("TrimOldDeals should be called when new deals are created")
	}

	store.trimCalled = false
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.trimCalled {
		t.Error("TrimOldDeals should NOT be called when no new deals are created")
	}
}

func TestProcessDeals_RaceConditionHandling(t *testing.T) {
	store := newMockStore()
	store.createErr = models.ErrDealExists
	scraper := &mockScraper{deals: []models.Deal{listing("Race Deal", "https://forums.redflagdeals.com/race-1", 1)}}

	p := newTestProcessor(store, nil, scraper)

	// The store claims the deal exists but cannot return it: logged, not fatal.
	if err := p.ProcessDeals(context.Background()); err != nil {
		t.Errorf("ProcessDeals() error = %v", err)
	}
	if len(store.deals) != 0 {
		t.Errorf("Expected no deals stored, got %d", len(store.deals))
	}
}

func TestGenerateDealID(t *testing.T) {
	a := generateDealID(created)
	if len(a) != 64 {
		t.Errorf("generateDealID() = %q, want a sha256 hex digest", a)
	}
	if a != generateDealID(created) {
		t.Error("generateDealID() should be deterministic")
	}
	if a == generateDealID(created.Add(time.Second)) {
		t.Error("Different publish times should give different IDs")
	}
}

var _ DealStore = (*mockStore)(nil)
