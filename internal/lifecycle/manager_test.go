package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/storage"
)

type mockSink struct {
	mu        sync.Mutex
	updateErr error
	deleteErr error
	updates   []models.Status
	deletes   []string
	block     chan struct{}
}

func (s *mockSink) UpdateStatus(ctx context.Context, id string, status models.Status, _ time.Time) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, status)
	return nil
}

func (s *mockSink) DeleteDeal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, id)
	return nil
}

func testDeals() []models.Deal {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return []models.Deal{
		{ID: "1", Title: "Laptop", Upvotes: 10, Status: models.StatusPending, CreatedAt: created, UpdatedAt: created},
		{ID: "2", Title: "Coffee", Upvotes: 3, Status: models.StatusApproved, CreatedAt: created, UpdatedAt: created},
		{ID: "3", Title: "Flight", Upvotes: 7, CreatedAt: created, UpdatedAt: created},
	}
}

func newTestManager(sink Sink) (*Manager, *notifier.Recorder, time.Time) {
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	rec := notifier.NewRecorder(10)
	m := NewManager(testDeals(), sink, rec, WithClock(func() time.Time { return now }))
	return m, rec, now
}

func TestSetStatus(t *testing.T) {
	sink := &mockSink{}
	m, rec, now := newTestManager(sink)

	updated, err := m.SetStatus(context.Background(), "1", models.StatusSponsored)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if updated.Status != models.StatusSponsored {
		t.Errorf("Status = %q, want sponsored", updated.Status)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, now)
	}
	if updated.Title != "Laptop" || updated.Upvotes != 10 {
		t.Errorf("Other fields changed: %+v", updated)
	}

	notices := rec.Recent()
	if len(notices) != 1 {
		t.Fatalf("Expected 1 notice, got %d", len(notices))
	}
	if notices[0].Title != "Deal Updated" || notices[0].Description != "Deal has been sponsored successfully." {
		t.Errorf("Unexpected notice: %+v", notices[0])
	}
}

func TestSetStatus_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(&mockSink{})

	for i := 0; i < 2; i++ {
		if _, err := m.SetStatus(context.Background(), "2", models.StatusApproved); err != nil {
			t.Fatalf("SetStatus() attempt %d error = %v", i, err)
		}
	}
	got, _ := m.Get("2")
	if got.Status != models.StatusApproved {
		t.Errorf("Status = %q", got.Status)
	}
	if c := m.Counts(); c.Approved != 1 || c.Total != 3 {
		t.Errorf("Counts() = %+v", c)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	sink := &mockSink{}
	m, rec, _ := newTestManager(sink)
	before := m.Snapshot()

	_, err := m.SetStatus(context.Background(), "missing", models.StatusApproved)
	if !errors.Is(err, models.ErrDealNotFound) {
		t.Fatalf("SetStatus() error = %v, want ErrDealNotFound", err)
	}
	if len(rec.Recent()) != 0 {
		t.Errorf("Expected no notices, got %+v", rec.Recent())
	}
	if len(sink.updates) != 0 {
		t.Errorf("Sink should not be called for unknown deals")
	}
	after := m.Snapshot()
	for i := range before {
		if before[i].Status != after[i].Status || !before[i].UpdatedAt.Equal(after[i].UpdatedAt) {
			t.Errorf("Deal %s changed", before[i].ID)
		}
	}
}

func TestSetStatus_DeletedBySiblingSession(t *testing.T) {
	store := storage.NewMemory(testDeals()...)
	a, recA, _ := newTestManager(store)
	b, _, _ := newTestManager(store)

	if err := b.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := a.SetStatus(context.Background(), "1", models.StatusApproved)
	if !errors.Is(err, models.ErrDealNotFound) {
		t.Fatalf("SetStatus() error = %v, want ErrDealNotFound", err)
	}
	if errors.Is(err, models.ErrUpdateFailed) {
		t.Error("a deal missing from the store is not an update failure")
	}
	if n := recA.Recent(); len(n) != 0 {
		t.Errorf("Expected no notices, got %+v", n)
	}
	if _, ok := a.Get("1"); ok {
		t.Error("stale copy of the deleted deal kept in the collection")
	}
	if c := a.Counts(); c.Total != 2 {
		t.Errorf("Counts().Total = %d, want 2", c.Total)
	}
}

func TestSetStatus_InvalidTarget(t *testing.T) {
	m, _, _ := newTestManager(&mockSink{})

	for _, s := range []models.Status{models.StatusPending, "", "archived"} {
		if _, err := m.SetStatus(context.Background(), "1", s); !errors.Is(err, models.ErrInvalidStatus) {
			t.Errorf("SetStatus(%q) error = %v, want ErrInvalidStatus", s, err)
		}
	}
}

func TestSetStatus_SinkFailure(t *testing.T) {
	sink := &mockSink{updateErr: errors.New("connection reset")}
	m, rec, _ := newTestManager(sink)

	_, err := m.SetStatus(context.Background(), "1", models.StatusRejected)
	if !errors.Is(err, models.ErrUpdateFailed) {
		t.Fatalf("SetStatus() error = %v, want ErrUpdateFailed", err)
	}
	got, _ := m.Get("1")
	if got.Status != models.StatusPending {
		t.Errorf("Status = %q, want unchanged pending", got.Status)
	}

	notices := rec.Recent()
	if len(notices) != 1 || notices[0].Level != notifier.LevelFailure {
		t.Fatalf("Expected one failure notice, got %+v", notices)
	}
	if notices[0].Description != "Failed to update deal status." {
		t.Errorf("Description = %q", notices[0].Description)
	}
	if m.Busy("1") {
		t.Error("Busy flag should be cleared after failure")
	}
}

func TestSetStatus_Busy(t *testing.T) {
	sink := &mockSink{block: make(chan struct{})}
	m, _, _ := newTestManager(sink)

	done := make(chan error, 1)
	go func() {
		_, err := m.SetStatus(context.Background(), "1", models.StatusApproved)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Busy("1") {
		if time.Now().After(deadline) {
			t.Fatal("first request never became busy")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := m.SetStatus(context.Background(), "1", models.StatusRejected); !errors.Is(err, models.ErrDealBusy) {
		t.Errorf("second SetStatus() error = %v, want ErrDealBusy", err)
	}
	if err := m.Delete(context.Background(), "1"); !errors.Is(err, models.ErrDealBusy) {
		t.Errorf("Delete() while busy error = %v, want ErrDealBusy", err)
	}
	if m.Busy("2") {
		t.Error("Busy flag leaked to another deal")
	}
	if ids := m.BusyIDs(); len(ids) != 1 || ids[0] != "1" {
		t.Errorf("BusyIDs() = %v, want [1]", ids)
	}

	close(sink.block)
	if err := <-done; err != nil {
		t.Fatalf("first SetStatus() error = %v", err)
	}
	got, _ := m.Get("1")
	if got.Status != models.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
}

func TestSetStatus_Timeout(t *testing.T) {
	sink := &mockSink{block: make(chan struct{})}
	now := time.Now()
	m := NewManager(testDeals(), sink, notifier.NewRecorder(1), WithTimeout(20*time.Millisecond), WithClock(func() time.Time { return now }))

	_, err := m.SetStatus(context.Background(), "1", models.StatusApproved)
	if !errors.Is(err, models.ErrUpdateFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SetStatus() error = %v, want ErrUpdateFailed wrapping DeadlineExceeded", err)
	}
}

func TestDelete(t *testing.T) {
	sink := &mockSink{}
	m, rec, _ := newTestManager(sink)

	if err := m.Delete(context.Background(), "2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	deals := m.Snapshot()
	if len(deals) != 2 || deals[0].ID != "1" || deals[1].ID != "3" {
		t.Errorf("Snapshot() after delete = %+v", deals)
	}
	if c := m.Counts(); c.Total != 2 || c.Approved != 0 || c.Pending != 2 {
		t.Errorf("Counts() = %+v", c)
	}
	notices := rec.Recent()
	if len(notices) != 1 || notices[0].Title != "Deal Deleted" {
		t.Errorf("Unexpected notices: %+v", notices)
	}
}

func TestDelete_UnknownIsNoop(t *testing.T) {
	sink := &mockSink{}
	m, rec, _ := newTestManager(sink)

	if err := m.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(m.Snapshot()) != 3 {
		t.Error("Collection changed")
	}
	if len(sink.deletes) != 0 || len(rec.Recent()) != 0 {
		t.Error("Unknown delete should not reach the sink or notify")
	}
}

func TestDelete_SinkFailure(t *testing.T) {
	sink := &mockSink{deleteErr: errors.New("permission denied")}
	m, rec, _ := newTestManager(sink)

	if err := m.Delete(context.Background(), "1"); !errors.Is(err, models.ErrUpdateFailed) {
		t.Fatalf("Delete() error = %v, want ErrUpdateFailed", err)
	}
	if len(m.Snapshot()) != 3 {
		t.Error("Collection should be unchanged")
	}
	notices := rec.Recent()
	if len(notices) != 1 || notices[0].Description != "Failed to delete deal." {
		t.Errorf("Unexpected notices: %+v", notices)
	}
}

func TestCount(t *testing.T) {
	deals := []models.Deal{
		{Status: models.StatusPending},
		{Status: ""},
		{Status: models.StatusApproved},
		{Status: models.StatusSponsored},
		{Status: models.StatusRejected},
		{Status: models.StatusRejected},
	}
	want := models.Stats{Total: 6, Pending: 2, Approved: 1, Sponsored: 1, Rejected: 2}
	if got := Count(deals); got != want {
		t.Errorf("Count() = %+v, want %+v", got, want)
	}
	if got := Count(nil); got != (models.Stats{}) {
		t.Errorf("Count(nil) = %+v", got)
	}
}

func TestCounts_SumMatchesTotal(t *testing.T) {
	m, _, _ := newTestManager(&mockSink{})
	ctx := context.Background()

	_, _ = m.SetStatus(ctx, "1", models.StatusApproved)
	_, _ = m.SetStatus(ctx, "3", models.StatusRejected)
	_ = m.Delete(ctx, "2")
	_, _ = m.SetStatus(ctx, "1", models.StatusSponsored)

	c := m.Counts()
	if c.Pending+c.Approved+c.Sponsored+c.Rejected != c.Total {
		t.Errorf("Counts() do not sum to total: %+v", c)
	}
	if c.Total != len(m.Snapshot()) {
		t.Errorf("Total = %d, collection has %d", c.Total, len(m.Snapshot()))
	}
}

func TestAttach(t *testing.T) {
	m, _, _ := newTestManager(&mockSink{})
	if !m.Attach("1", models.SentimentAnalysis{DealID: "1", Overall: models.OverallPositive}) {
		t.Fatal("Attach() = false")
	}
	got, _ := m.Get("1")
	if got.Sentiment == nil || got.Sentiment.Overall != models.OverallPositive {
		t.Errorf("Sentiment = %+v", got.Sentiment)
	}
	if m.Attach("missing", models.SentimentAnalysis{}) {
		t.Error("Attach() on unknown deal = true")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	m, _, _ := newTestManager(&mockSink{})
	snap := m.Snapshot()
	snap[0].Status = models.StatusRejected
	got, _ := m.Get(snap[0].ID)
	if got.Status == models.StatusRejected {
		t.Error("Snapshot() shares storage with the manager")
	}
}
