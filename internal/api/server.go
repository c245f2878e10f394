// Package api exposes sessions, the feed and the admin actions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/session"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

// SessionHeader carries the session id in both directions.
const SessionHeader = "X-Session-ID"

const defaultIngestTimeout = 4 * time.Minute

// Ingester runs one scrape and store pass.
type Ingester interface {
	ProcessDeals(ctx context.Context) error
}

// IngestClock reports when ingestion last completed.
type IngestClock interface {
	LastIngest(ctx context.Context) (time.Time, error)
}

// StructValidator validates request bodies.
type StructValidator interface {
	ValidateStruct(s interface{}) error
}

type Server struct {
	sessions      *session.Registry
	ingester      Ingester
	clock         IngestClock
	validate      StructValidator
	pageSize      int
	ingestTimeout time.Duration
	ingesting     *util.Inflight
	now           func() time.Time
}

// Options configure a Server. Zero values select defaults.
type Options struct {
	PageSize      int
	IngestTimeout time.Duration
	Now           func() time.Time
}

func New(sessions *session.Registry, ingester Ingester, clock IngestClock, v StructValidator, opts Options) *Server {
	s := &Server{
		sessions:      sessions,
		ingester:      ingester,
		clock:         clock,
		validate:      v,
		pageSize:      opts.PageSize,
		ingestTimeout: opts.IngestTimeout,
		ingesting:     util.NewInflight(),
		now:           opts.Now,
	}
	if s.pageSize <= 0 {
		s.pageSize = 20
	}
	if s.ingestTimeout <= 0 {
		s.ingestTimeout = defaultIngestTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/api/categories", s.handleCategories)
		r.Get("/api/notices", s.handleNotices)
		r.Post("/api/refresh", s.handleRefresh)

		r.Route("/api/deals", func(r chi.Router) {
			r.Get("/", s.handleListDeals)
			r.Get("/trending", s.handleTrending)
			r.Post("/analyze", s.handleAnalyzeAll)
			r.Post("/{id}/analyze", s.handleAnalyze)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/deals", s.handleAdminDeals)
			r.Get("/stats", s.handleStats)
			r.Post("/deals/{id}/status", s.handleSetStatus)
			r.Delete("/deals/{id}", s.handleDelete)
			r.Post("/ingest", s.handleIngest)
		})
	})
	return r
}

type sessionKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, created, err := s.sessions.Get(r.Context(), r.Header.Get(SessionHeader))
		if err != nil {
			slog.Error("Failed to load session", "error", err)
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if created {
			slog.Debug("Issued session", "session", sess.ID, "request_id", middleware.GetReqID(r.Context()))
		}
		w.Header().Set(SessionHeader, sess.ID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDealNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDealBusy), errors.Is(err, util.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
