package viewport

import (
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/bounds"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

// Find sweeps expired entries, then returns the first entry in insertion
// order whose padded bounds contain b.
func (s *Store) Find(now time.Time, b model.ViewportBounds) (Entry, bool) {
	s.SweepExpired(now)
	for _, e := range s.entries {
		if bounds.Contains(e.Bounds, b) {
			return e, true
		}
	}
	return Entry{}, false
}
