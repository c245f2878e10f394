package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pauljones0/dealanalyzer/internal/feed"
	"github.com/pauljones0/dealanalyzer/internal/lifecycle"
	"github.com/pauljones0/dealanalyzer/internal/models"
	"github.com/pauljones0/dealanalyzer/internal/trend"
	"github.com/pauljones0/dealanalyzer/internal/util"
)

// ingestKey is the busy-flag key for manual ingestion runs.
const ingestKey = "ingest"

type dealView struct {
	models.Deal
	TrendingScore float64 `json:"trending_score"`
	Hot           bool    `json:"hot"`
	Busy          bool    `json:"busy,omitempty"`
}

type dealPage struct {
	Deals    []dealView    `json:"deals"`
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	HasNext  bool          `json:"has_next"`
	Criteria feed.Criteria `json:"criteria"`
}

type statusRequest struct {
	Status models.Status `json:"status" validate:"required,oneof=approved rejected sponsored"`
}

type statsResponse struct {
	models.Stats
	Categories map[string]int `json:"categories"`
	LastIngest *time.Time     `json:"last_ingest,omitempty"`
}

func (s *Server) views(deals []models.Deal) []dealView {
	now := s.now()
	out := make([]dealView, len(deals))
	for i, d := range deals {
		score := trend.DealScore(d, now)
		out[i] = dealView{Deal: d, TrendingScore: score, Hot: trend.IsHot(score)}
	}
	return out
}

// handleListDeals updates the session selections from any supplied query
// parameters and returns one page of the filtered feed.
// GET /api/deals?category=&window=&q=&offset=&limit=
func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	q := r.URL.Query()
	if q.Has("category") {
		sess.View.SetCategory(q.Get("category"))
	}
	if q.Has("window") {
		sess.View.SetWindow(q.Get("window"))
	}
	if q.Has("q") {
		sess.View.SetQuery(q.Get("q"))
	}

	offset := util.NonNegative(util.SafeAtoi(q.Get("offset")))
	limit := s.pageSize
	if v := util.SafeAtoi(q.Get("limit")); v > 0 {
		limit = v
	}

	deals := sess.Feed()
	page, hasNext := feed.Page(deals, offset, limit)
	writeJSON(w, http.StatusOK, dealPage{
		Deals:    s.views(page),
		Total:    len(deals),
		Offset:   offset,
		HasNext:  hasNext,
		Criteria: sess.View.Criteria(),
	})
}

// GET /api/deals/trending?mode=&limit=
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ranked := trend.Rank(sess.Feed(), trend.ParseMode(r.URL.Query().Get("mode")), s.now())
	writeJSON(w, http.StatusOK, trend.Top(ranked, util.SafeAtoi(r.URL.Query().Get("limit"))))
}

// POST /api/deals/{id}/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	analysis, err := sessionFrom(r).Analyze(r.Context(), id)
	if err != nil {
		slog.Warn("Sentiment analysis failed", "id", id, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// POST /api/deals/analyze
func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	n, err := sessionFrom(r).AnalyzeAll(r.Context())
	resp := map[string]any{"analyzed": n}
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": sess.View.Catalog().Categories(),
		"counts":     feed.CategoryCounts(sess.Desk.Snapshot(), sess.View.Catalog()),
	})
}

// GET /api/notices
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).Notices.Recent())
}

// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Refresh(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total": len(sess.Desk.Snapshot())})
}

// handleAdminDeals lists matching deals and flags those with a status change
// or delete still running.
// GET /api/admin/deals?q=
func (s *Server) handleAdminDeals(w http.ResponseWriter, r *http.Request) {
	desk := sessionFrom(r).Desk
	views := s.views(feed.AdminSearch(desk.Snapshot(), r.URL.Query().Get("q")))
	if busy := desk.BusyIDs(); len(busy) > 0 {
		for i := range views {
			views[i].Busy = slices.Contains(busy, views[i].ID)
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// GET /api/admin/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	deals := sess.Desk.Snapshot()
	resp := statsResponse{
		Stats:      lifecycle.Count(deals),
		Categories: feed.CategoryCounts(deals, sess.View.Catalog()),
	}
	if s.clock != nil {
		last, err := s.clock.LastIngest(r.Context())
		if err != nil {
			slog.Warn("Failed to read last ingest time", "error", err)
		} else if !last.IsZero() {
			resp.LastIngest = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/admin/deals/{id}/status
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.ValidateStruct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("%w: %w", models.ErrInvalidStatus, err))
		return
	}

	deal, err := sessionFrom(r).Desk.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.views([]models.Deal{deal})[0])
}

// DELETE /api/admin/deals/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r).Desk.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngest starts an ingestion run in the background so the response is
// not held open for scraping and storage calls. Only one run at a time.
// POST /api/admin/ingest
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("ingestion is not configured"))
		return
	}
	if !s.ingesting.TryAcquire(ingestKey) {
		writeError(w, http.StatusConflict, errors.New("ingestion already running"))
		return
	}

	go func() {
		defer s.ingesting.Release(ingestKey)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in ProcessDeals", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.ingestTimeout)
		defer cancel()
		if err := s.ingester.ProcessDeals(ctx); err != nil {
			slog.Error("Error processing deals", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "Deal processing started."})
}
