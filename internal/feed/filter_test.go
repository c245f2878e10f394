package feed

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	return LoadCatalog("")
}

func sampleDeals() []models.Deal {
	return []models.Deal{
		{ID: "1", Title: "MacBook Air M2 - Student Discount Available", Description: "Apple MacBook Air with M2 chip", CreatedAt: testNow.Add(-2 * time.Hour)},
		{ID: "2", Title: "Costco Gas Price Drop - All Locations", Description: "Significant price reduction", CreatedAt: testNow.Add(-4 * 24 * time.Hour)},
		{ID: "3", Title: "Samsung Galaxy S24 Ultra Pre-order Bonus", CreatedAt: testNow.Add(-20 * 24 * time.Hour)},
		{ID: "4", Title: "Mystery Box Giveaway", Description: "No category keywords here", CreatedAt: testNow.Add(-90 * 24 * time.Hour)},
	}
}

func ids(deals []models.Deal) []string {
	out := make([]string, 0, len(deals))
	for _, d := range deals {
		out = append(out, d.ID)
	}
	return out
}

func TestFilter_IdentityWithPermissiveCriteria(t *testing.T) {
	deals := sampleDeals()
	got := Filter(deals, Criteria{Category: CategoryAll, Window: WindowAll}, testCatalog(t), testNow)
	if !reflect.DeepEqual(got, deals) {
		t.Errorf("Filter() with permissive criteria = %v, want the full collection", ids(got))
	}
}

func TestFilter_CategoryScenario(t *testing.T) {
	deals := []models.Deal{{ID: "1", Title: "Costco Gas Price Drop", CreatedAt: testNow}}
	catalog := testCatalog(t)

	if got := Filter(deals, Criteria{Category: "grocery"}, catalog, testNow); len(got) != 1 {
		t.Errorf("grocery filter returned %d deals, want 1", len(got))
	}
	if got := Filter(deals, Criteria{Category: "tech"}, catalog, testNow); len(got) != 0 {
		t.Errorf("tech filter returned %d deals, want 0", len(got))
	}
}

func TestFilter_CategoryPartition(t *testing.T) {
	catalog := testCatalog(t)
	deals := sampleDeals()

	for _, cat := range catalog.Categories() {
		t.Run(cat.ID, func(t *testing.T) {
			got := Filter(deals, Criteria{Category: cat.ID}, catalog, testNow)
			included := make(map[string]bool)
			for _, d := range got {
				included[d.ID] = true
				if !titleHasKeyword(d.Title, cat.Keywords) {
					t.Errorf("deal %q included without a %s keyword", d.Title, cat.ID)
				}
			}
			for _, d := range deals {
				if !included[d.ID] && titleHasKeyword(d.Title, cat.Keywords) {
					t.Errorf("deal %q excluded despite a %s keyword", d.Title, cat.ID)
				}
			}
		})
	}
}

func titleHasKeyword(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func TestFilter_UncategorisedOnlyUnderAll(t *testing.T) {
	catalog := testCatalog(t)
	deals := sampleDeals()
	for _, cat := range catalog.Categories() {
		for _, d := range Filter(deals, Criteria{Category: cat.ID}, catalog, testNow) {
			if d.ID == "4" {
				t.Errorf("uncategorised deal appeared under %s", cat.ID)
			}
		}
	}
	all := Filter(deals, Criteria{Category: CategoryAll}, catalog, testNow)
	if !contains(ids(all), "4") {
		t.Error("uncategorised deal missing from all")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestFilter_WindowMonotonic(t *testing.T) {
	catalog := testCatalog(t)
	deals := sampleDeals()
	windows := []Window{WindowToday, WindowWeek, WindowMonth, WindowAll}
	wantCounts := []int{1, 2, 3, 4}

	var prev []string
	for i, w := range windows {
		got := ids(Filter(deals, Criteria{Window: w}, catalog, testNow))
		if len(got) != wantCounts[i] {
			t.Errorf("window %s returned %v, want %d deals", w, got, wantCounts[i])
		}
		for _, id := range prev {
			if !contains(got, id) {
				t.Errorf("window %s lost deal %s present in the narrower window", w, id)
			}
		}
		prev = got
	}
}

func TestElapsedDays_CeilingRounded(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want int
	}{
		{"Just created", 0, 0},
		{"One hour", time.Hour, 1},
		{"Exactly one day", 24 * time.Hour, 1},
		{"One day and a minute", 24*time.Hour + time.Minute, 2},
		{"Seven days", 7 * 24 * time.Hour, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElapsedDays(testNow.Add(-tt.age), testNow); got != tt.want {
				t.Errorf("ElapsedDays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInWindow_Boundaries(t *testing.T) {
	if !InWindow(WindowToday, testNow.Add(-24*time.Hour), testNow) {
		t.Error("a deal exactly one day old should be in today")
	}
	if InWindow(WindowToday, testNow.Add(-25*time.Hour), testNow) {
		t.Error("a deal 25 hours old should not be in today")
	}
	if !InWindow(WindowMonth, testNow.Add(-30*24*time.Hour), testNow) {
		t.Error("a deal 30 days old should be in month")
	}
	if !InWindow(WindowAll, time.Time{}, testNow) {
		t.Error("all-time should always pass")
	}
}

func TestFilter_TextQuery(t *testing.T) {
	catalog := testCatalog(t)
	deals := sampleDeals()

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3", "4"}},
		{"MACBOOK", []string{"1"}},
		{"price reduction", []string{"2"}},
		{"galaxy", []string{"3"}},
		{"nothing matches this", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := ids(Filter(deals, Criteria{Query: tt.query}, catalog, testNow))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter(query=%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchesQuery_MissingDescription(t *testing.T) {
	d := models.Deal{Title: "Bare deal"}
	if MatchesQuery(d, "anything") {
		t.Error("deal without description should not match an unrelated query")
	}
	if !MatchesQuery(d, "bare") {
		t.Error("title match should still work without description")
	}
}

func TestFilter_CombinedAndStable(t *testing.T) {
	catalog := testCatalog(t)
	deals := []models.Deal{
		{ID: "a", Title: "iPhone case", CreatedAt: testNow.Add(-time.Hour)},
		{ID: "b", Title: "Laptop stand", CreatedAt: testNow.Add(-10 * 24 * time.Hour)},
		{ID: "c", Title: "Laptop sleeve", CreatedAt: testNow.Add(-2 * time.Hour)},
		{ID: "d", Title: "iPhone charger", CreatedAt: testNow.Add(-3 * time.Hour)},
	}
	got := ids(Filter(deals, Criteria{Category: "tech", Window: WindowWeek, Query: "E"}, catalog, testNow))
	want := []string{"a", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Filter() = %v, want %v", got, want)
	}
}

func TestFilter_UnknownSelectorsFallBack(t *testing.T) {
	catalog := testCatalog(t)
	deals := sampleDeals()
	got := Filter(deals, Criteria{Category: "spaceships", Window: "fortnight"}, catalog, testNow)
	if len(got) != len(deals) {
		t.Errorf("unknown selectors returned %d deals, want %d", len(got), len(deals))
	}
}

func TestParseWindow(t *testing.T) {
	tests := map[string]Window{
		"today":      WindowToday,
		"this-week":  WindowWeek,
		"Week":       WindowWeek,
		"this-month": WindowMonth,
		"all-time":   WindowAll,
		"":           WindowAll,
		"yesterday":  WindowAll,
	}
	for in, want := range tests {
		if got := ParseWindow(in); got != want {
			t.Errorf("ParseWindow(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdminSearch(t *testing.T) {
	deals := []models.Deal{
		{ID: "1", Title: "AI Code Assistant Pro", Category: "Development Tools", Technology: "AI"},
		{ID: "2", Title: "Next.js 14 Complete Course Bundle", Category: "Education", Technology: "Next.js"},
		{ID: "3", Title: "Outdated React Tutorial", Description: "deprecated patterns", Category: "Education", Technology: "React"},
	}

	if got := ids(AdminSearch(deals, "education")); !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Errorf("AdminSearch(category) = %v", got)
	}
	if got := ids(AdminSearch(deals, "react")); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("AdminSearch(technology) = %v", got)
	}
	if got := AdminSearch(deals, ""); len(got) != 3 {
		t.Errorf("AdminSearch(empty) returned %d deals, want 3", len(got))
	}
}

func TestPage(t *testing.T) {
	deals := sampleDeals()

	tests := []struct {
		name     string
		offset   int
		limit    int
		want     []string
		wantNext bool
	}{
		{"First page", 0, 2, []string{"1", "2"}, true},
		{"Last page", 2, 2, []string{"3", "4"}, false},
		{"Past end", 10, 2, []string{}, false},
		{"Negative offset", -5, 1, []string{"1"}, true},
		{"No limit", 1, 0, []string{"2", "3", "4"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, next := Page(deals, tt.offset, tt.limit)
			if got := ids(page); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Page() = %v, want %v", got, tt.want)
			}
			if next != tt.wantNext {
				t.Errorf("Page() hasNext = %v, want %v", next, tt.wantNext)
			}
		})
	}
}
