// Package feed narrows a deal collection to what a reader asked to see.
//
// Filtering is a pure function of the collection, the criteria and the current
// time. Nothing is cached: every call recomputes from its inputs.
package feed

import (
	"math"
	"strings"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// Window is a creation-time window.
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// ParseWindow maps a selector to a Window. Unknown values mean WindowAll.
func ParseWindow(s string) Window {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return WindowToday
	case "week", "this-week":
		return WindowWeek
	case "month", "this-month":
		return WindowMonth
	default:
		return WindowAll
	}
}

// maxDays returns the inclusive day limit for w; ok is false for WindowAll.
func (w Window) maxDays() (limit int, ok bool) {
	switch w {
	case WindowToday:
		return 1, true
	case WindowWeek:
		return 7, true
	case WindowMonth:
		return 30, true
	default:
		return 0, false
	}
}

// ElapsedDays is the number of whole days between created and now, rounded up.
func ElapsedDays(created, now time.Time) int {
	return int(math.Ceil(now.Sub(created).Hours() / 24))
}

// InWindow reports whether a deal created at created falls within w at now.
func InWindow(w Window, created, now time.Time) bool {
	limit, ok := w.maxDays()
	if !ok {
		return true
	}
	return ElapsedDays(created, now) <= limit
}

// MatchesQuery reports whether query occurs in the deal title or description,
// ignoring case. An empty query matches everything.
func MatchesQuery(deal models.Deal, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(deal.Title), q) ||
		strings.Contains(strings.ToLower(deal.Description), q)
}

// Criteria are the active feed selections.
type Criteria struct {
	Category string `json:"category"`
	Window   Window `json:"window"`
	Query    string `json:"query"`
}

// Filter returns the deals that satisfy every criterion, in their original order.
func Filter(deals []models.Deal, c Criteria, catalog *Catalog, now time.Time) []models.Deal {
	category := catalog.Resolve(c.Category)
	window := ParseWindow(string(c.Window))

	out := make([]models.Deal, 0, len(deals))
	for _, d := range deals {
		if !catalog.Matches(category, d.Title) {
			continue
		}
		if !InWindow(window, d.CreatedAt, now) {
			continue
		}
		if !MatchesQuery(d, c.Query) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// CategoryCounts returns how many deals each category tab would show, keyed by
// category ID, with CategoryAll counting every deal.
func CategoryCounts(deals []models.Deal, catalog *Catalog) map[string]int {
	counts := map[string]int{CategoryAll: len(deals)}
	for _, cat := range catalog.Categories() {
		counts[cat.ID] = 0
	}
	for _, d := range deals {
		for _, id := range catalog.Classify(d.Title) {
			counts[id]++
		}
	}
	return counts
}

// AdminSearch is the back-office search: it also matches category and technology labels.
func AdminSearch(deals []models.Deal, query string) []models.Deal {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]models.Deal, len(deals))
		copy(out, deals)
		return out
	}
	var out []models.Deal
	for _, d := range deals {
		if MatchesQuery(d, q) ||
			strings.Contains(strings.ToLower(d.Category), q) ||
			strings.Contains(strings.ToLower(d.Technology), q) {
			out = append(out, d)
		}
	}
	return out
}

// Page returns deals[offset:offset+limit] and whether more deals follow.
// Out-of-range offsets are clamped; a non-positive limit returns everything after offset.
func Page(deals []models.Deal, offset, limit int) ([]models.Deal, bool) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(deals) {
		offset = len(deals)
	}
	end := len(deals)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return deals[offset:end], end < len(deals)
}
