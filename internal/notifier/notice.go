// Package notifier delivers user-visible notices about admin actions.
package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// Level is the outcome a notice reports.
type Level string

const (
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
)

// Notice is a toast-style message. Delivery is fire-and-forget.
type Notice struct {
	ID          string       `json:"id"`
	Level       Level        `json:"level"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Deal        *models.Deal `json:"deal,omitempty"`
	At          time.Time    `json:"at"`
}

// NewNotice stamps a notice with an ID and the current time.
func NewNotice(level Level, title, description string, deal *models.Deal) Notice {
	return Notice{
		ID:          uuid.NewString(),
		Level:       level,
		Title:       title,
		Description: description,
		Deal:        deal,
		At:          time.Now(),
	}
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Log writes notices to slog. It is the default when no webhook is configured.
type Log struct{}

func (Log) Notify(_ context.Context, n Notice) error {
	attrs := []any{"id", n.ID, "title", n.Title, "description", n.Description}
	if n.Deal != nil {
		attrs = append(attrs, "deal", n.Deal.ID)
	}
	if n.Level == LevelFailure {
		slog.Warn("Notice", attrs...)
	} else {
		slog.Info("Notice", attrs...)
	}
	return nil
}

// Multi fans a notice out to several notifiers. Every notifier is attempted;
// the first error is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var first error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps the most recent notices in memory so a session can show them.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	notices []Notice
}

// NewRecorder keeps at most limit notices.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 50
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	if len(r.notices) > r.limit {
		r.notices = r.notices[len(r.notices)-r.limit:]
	}
	return nil
}

// Recent returns the recorded notices, oldest first.
func (r *Recorder) Recent() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Async queues notices for a background worker so callers never wait on delivery.
// Notices are dropped when the queue is full.
type Async struct {
	next    Notifier
	queue   chan Notice
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a worker delivering to next.
func NewAsync(next Notifier, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &Async{
		next:    next,
		queue:   make(chan Notice, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, n Notice) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- n:
	default:
		slog.Warn("Notice queue full, dropping notice", "id", n.ID, "title", n.Title)
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, n); err != nil {
			slog.Warn("Failed to deliver notice", "id", n.ID, "error", err)
		}
		cancel()
	}
}

// Close drains the queue and stops the worker.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
