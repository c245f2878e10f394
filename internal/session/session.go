// Package session holds the per-client state: feed selections, the session copy
// of the deal collection and the busy flags guarding operations on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/dealanalyzer/internal/feed"
	"github.com/pauljones0/dealanalyzer/internal/lifecycle"
	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/notifier"
	"github.com/pauljones0/dealanalyzer/internal/sentiment"
	"github.com/pauljones0/dealanalyzer/internal/storage"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

const (
	maxParallelAnalyses = 4
	noticeHistory       = 50
)

// CommentSource fetches the comment thread behind a deal's source URL.
type CommentSource interface {
	FetchComments(ctx context.Context, sourceURL string) ([]string, error)
}

// SentimentValidator checks an analysis before it is attached to a deal.
type SentimentValidator interface {
	ValidateSentiment(a models.SentimentAnalysis) error
}

// Deps are shared by every session in a Registry.
type Deps struct {
	Store     storage.Store
	Catalog   *feed.Catalog
	Comments  CommentSource
	Analyzer  sentiment.Analyzer
	Validator SentimentValidator
	Notifier  notifier.Notifier
	Timeout   time.Duration
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Session is one client's working copy of the deal collection.
type Session struct {
	ID      string
	View    *feed.View
	Desk    *lifecycle.Manager
	Notices *notifier.Recorder

	deps     *Deps
	analyses *util.Inflight
	refresh  util.Latest

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(id string, deps *Deps) *Session {
	rec := notifier.NewRecorder(noticeHistory)
	opts := []lifecycle.Option{lifecycle.WithTimeout(deps.Timeout)}
	if deps.Now != nil {
		opts = append(opts, lifecycle.WithClock(deps.Now))
	}
	return &Session{
		ID:       id,
		View:     feed.NewView(deps.Catalog),
		Desk:     lifecycle.NewManager(nil, deps.Store, notifier.Multi{rec, deps.Notifier}, opts...),
		Notices:  rec,
		deps:     deps,
		analyses: util.NewInflight(),
		lastSeen: deps.now(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen is the last time the session was used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Refresh reloads the collection from the store. A newer Refresh cancels an
// older one, which then returns util.ErrSuperseded without touching the collection.
func (s *Session) Refresh(ctx context.Context) error {
	var deals []models.Deal
	err := s.refresh.Do(ctx, func(ctx context.Context) error {
		loaded, err := s.deps.Store.ListDeals(ctx)
		if err != nil {
			return fmt.Errorf("failed to list deals: %w", err)
		}
		deals = loaded
		return nil
	}, func() {
		s.Desk.Replace(deals)
	})
	if err != nil {
		return err
	}
	slog.Debug("Refreshed session", "session", s.ID, "deals", len(deals))
	return nil
}

// Feed applies the session's selections to its collection.
func (s *Session) Feed() []models.Deal {
	return s.View.Apply(s.Desk.Snapshot(), s.deps.now())
}

// Analyzing reports whether a sentiment analysis for id is in flight.
func (s *Session) Analyzing(id string) bool {
	return s.analyses.Busy(id)
}

// Analyze runs sentiment analysis for deal id, attaches the result to the
// session copy and persists it. Only one analysis per deal runs at a time.
func (s *Session) Analyze(ctx context.Context, id string) (models.SentimentAnalysis, error) {
	deal, ok := s.Desk.Get(id)
	if !ok {
		return models.SentimentAnalysis{}, models.ErrDealNotFound
	}
	if !s.analyses.TryAcquire(id) {
		return models.SentimentAnalysis{}, models.ErrDealBusy
	}
	defer s.analyses.Release(id)

	if s.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
	}

	var comments []string
	if deal.SourceURL != "" && s.deps.Comments != nil {
		var err error
		comments, err = s.deps.Comments.FetchComments(ctx, deal.SourceURL)
		if err != nil {
			return models.SentimentAnalysis{}, fmt.Errorf("failed to fetch comments for deal %s: %w", id, err)
		}
	}

	scores, err := s.deps.Analyzer.Score(ctx, deal, comments)
	if err != nil {
		return models.SentimentAnalysis{}, fmt.Errorf("failed to analyze deal %s: %w", id, err)
	}

	analysis := sentiment.Build(id, scores, len(comments), s.deps.now())
	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateSentiment(analysis); err != nil {
			return models.SentimentAnalysis{}, fmt.Errorf("invalid analysis for deal %s: %w", id, err)
		}
	}

	if err := s.deps.Store.SaveSentiment(ctx, analysis); err != nil {
		if errors.Is(err, models.ErrDealNotFound) {
			return models.SentimentAnalysis{}, err
		}
		return models.SentimentAnalysis{}, fmt.Errorf("%w: %w", models.ErrUpdateFailed, err)
	}
	if !s.Desk.Attach(id, analysis) {
		return models.SentimentAnalysis{}, models.ErrDealNotFound
	}

	slog.Info("Analyzed deal sentiment", "session", s.ID, "id", id,
		"overall", analysis.Overall, "comments", analysis.CommentCount)
	return analysis, nil
}

// AnalyzeAll analyzes every visible deal that has no analysis yet. Deals
// already being analyzed are skipped. It returns the number analyzed.
func (s *Session) AnalyzeAll(ctx context.Context) (int, error) {
	var pending []string
	for _, d := range s.Feed() {
		if d.Sentiment == nil {
			pending = append(pending, d.ID)
		}
	}

	var (
		mu       sync.Mutex
		analyzed int
		errs     []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelAnalyses)
	for _, id := range pending {
		g.Go(func() error {
			_, err := s.Analyze(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				analyzed++
			case errors.Is(err, models.ErrDealBusy), errors.Is(err, models.ErrDealNotFound):
			default:
				slog.Warn("Sentiment analysis failed", "session", s.ID, "id", id, "error", err)
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return analyzed, errors.Join(errs...)
}
