package feed

import (
	"sync"
	"time"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// View holds one session's feed selections.
type View struct {
	mu       sync.RWMutex
	catalog  *Catalog
	criteria Criteria
}

// NewView returns a view showing everything.
func NewView(catalog *Catalog) *View {
	return &View{
		catalog:  catalog,
		criteria: Criteria{Category: CategoryAll, Window: WindowAll},
	}
}

// SetCategory selects a category; unknown values select CategoryAll.
func (v *View) SetCategory(selector string) {
	v.mu.Lock()
	v.criteria.Category = v.catalog.Resolve(selector)
	v.mu.Unlock()
}

// SetWindow selects a time window; unknown values select WindowAll.
func (v *View) SetWindow(selector string) {
	v.mu.Lock()
	v.criteria.Window = ParseWindow(selector)
	v.mu.Unlock()
}

// SetQuery sets the free-text query.
func (v *View) SetQuery(q string) {
	v.mu.Lock()
	v.criteria.Query = q
	v.mu.Unlock()
}

// Criteria returns the current selections.
func (v *View) Criteria() Criteria {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.criteria
}

// Catalog returns the category table the view filters with.
func (v *View) Catalog() *Catalog {
	return v.catalog
}

// Apply filters deals with the current selections.
func (v *View) Apply(deals []models.Deal, now time.Time) []models.Deal {
	return Filter(deals, v.Criteria(), v.catalog, now)
}
