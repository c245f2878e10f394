// Package lifecycle moves deals between moderation states and keeps the
// per-status counts consistent with the collection.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

// Sink persists lifecycle changes. A Sink error leaves the collection untouched.
type Sink interface {
	UpdateStatus(ctx context.Context, id string, status models.Status, updatedAt time.Time) error
	DeleteDeal(ctx context.Context, id string) error
}

const (
	titleUpdated = "Deal Updated"
	titleDeleted = "Deal Deleted"
	titleError   = "Error"

	descDeleted      = "Deal has been permanently deleted."
	descUpdateFailed = "Failed to update deal status."
	descDeleteFailed = "Failed to delete deal."
)

// DefaultTimeout bounds a single sink call.
const DefaultTimeout = 10 * time.Second

// Manager owns a session's copy of the deal collection.
type Manager struct {
	mu    sync.RWMutex
	deals []models.Deal

	busy     *util.Inflight
	sink     Sink
	notifier notifier.Notifier
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager copies deals into a new manager. A nil notifier logs notices.
func NewManager(deals []models.Deal, sink Sink, n notifier.Notifier, opts ...Option) *Manager {
	if n == nil {
		n = notifier.Log{}
	}
	m := &Manager{
		deals:    cloneDeals(deals),
		busy:     util.NewInflight(),
		sink:     sink,
		notifier: n,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Replace swaps in a freshly loaded collection.
func (m *Manager) Replace(deals []models.Deal) {
	fresh := cloneDeals(deals)
	m.mu.Lock()
	m.deals = fresh
	m.mu.Unlock()
}

// Snapshot returns a copy of the collection in its current order.
func (m *Manager) Snapshot() []models.Deal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneDeals(m.deals)
}

// Get returns a copy of the deal with id.
func (m *Manager) Get(id string) (models.Deal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		return m.deals[i], true
	}
	return models.Deal{}, false
}

// Busy reports whether id has an operation in flight.
func (m *Manager) Busy(id string) bool {
	return m.busy.Busy(id)
}

// Counts scans the collection. Counts are never stored, so they cannot drift.
func (m *Manager) Counts() models.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Count(m.deals)
}

// Count derives per-status counts from deals.
func Count(deals []models.Deal) models.Stats {
	stats := models.Stats{Total: len(deals)}
	for _, d := range deals {
		switch d.Status.OrPending() {
		case models.StatusApproved:
			stats.Approved++
		case models.StatusSponsored:
			stats.Sponsored++
		case models.StatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
	}
	return stats
}

// SetStatus moves deal id to status. Setting the current status again is
// allowed and only refreshes UpdatedAt.
func (m *Manager) SetStatus(ctx context.Context, id string, status models.Status) (models.Deal, error) {
	if !status.IsAdminTarget() {
		return models.Deal{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	if _, ok := m.Get(id); !ok {
		slog.Debug("Status change for unknown deal ignored", "id", id)
		return models.Deal{}, models.ErrDealNotFound
	}
	if !m.busy.TryAcquire(id) {
		return models.Deal{}, models.ErrDealBusy
	}
	defer m.busy.Release(id)

	updatedAt := m.now()
	sinkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.sink.UpdateStatus(sinkCtx, id, status, updatedAt); err != nil {
		if errors.Is(err, models.ErrDealNotFound) {
			// Deleted elsewhere; drop the stale copy.
			slog.Debug("Status change for deal missing from store", "id", id)
			m.remove(id)
			return models.Deal{}, models.ErrDealNotFound
		}
		slog.Error("Failed to update deal status", "id", id, "status", status, "error", err)
		current, _ := m.Get(id)
		m.notify(ctx, notifier.NewNotice(notifier.LevelFailure, titleError, descUpdateFailed, &current))
		return models.Deal{}, fmt.Errorf("%w: %w", models.ErrUpdateFailed, err)
	}

	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		// Removed by a refresh while the sink call was running.
		m.mu.Unlock()
		return models.Deal{}, models.ErrDealNotFound
	}
	m.deals[i].Status = status
	m.deals[i].UpdatedAt = updatedAt
	updated := m.deals[i]
	m.mu.Unlock()

	slog.Info("Updated deal status", "id", id, "status", status)
	m.notify(ctx, notifier.NewNotice(notifier.LevelSuccess, titleUpdated,
		fmt.Sprintf("Deal has been %s successfully.", status), &updated))
	return updated, nil
}

// Delete removes deal id. Deleting an unknown id is a no-op.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, ok := m.Get(id); !ok {
		return nil
	}
	if !m.busy.TryAcquire(id) {
		return models.ErrDealBusy
	}
	defer m.busy.Release(id)

	sinkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.sink.DeleteDeal(sinkCtx, id); err != nil {
		slog.Error("Failed to delete deal", "id", id, "error", err)
		current, _ := m.Get(id)
		m.notify(ctx, notifier.NewNotice(notifier.LevelFailure, titleError, descDeleteFailed, &current))
		return fmt.Errorf("%w: %w", models.ErrUpdateFailed, err)
	}

	removed := m.remove(id)
	slog.Info("Deleted deal", "id", id)
	m.notify(ctx, notifier.NewNotice(notifier.LevelSuccess, titleDeleted, descDeleted, removed))
	return nil
}

// Attach stores a sentiment analysis on the session copy of deal id.
func (m *Manager) Attach(id string, analysis models.SentimentAnalysis) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	a := analysis
	m.deals[i].Sentiment = &a
	return true
}

// BusyIDs lists the deals with a status change or delete in flight.
func (m *Manager) BusyIDs() []string {
	return m.busy.Keys()
}

// remove drops id from the collection and returns the removed deal, if any.
func (m *Manager) remove(id string) *models.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return nil
	}
	d := m.deals[i]
	m.deals = append(m.deals[:i:i], m.deals[i+1:]...)
	return &d
}

func (m *Manager) notify(ctx context.Context, n notifier.Notice) {
	if err := m.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		slog.Warn("Failed to send notice", "title", n.Title, "error", err)
	}
}

func (m *Manager) indexOf(id string) int {
	for i := range m.deals {
		if m.deals[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneDeals(deals []models.Deal) []models.Deal {
	out := make([]models.Deal, len(deals))
	copy(out, deals)
	for i := range out {
		if out[i].Sentiment != nil {
			s := *out[i].Sentiment
			out[i].Sentiment = &s
		}
	}
	return out
}
