// Package viewport holds the bounded, insertion-ordered collection of
// padded viewport entries and the containment lookup over it.
package viewport

import (
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

const (
	DefaultMaxEntries = 10
	DefaultTTL        = 5 * time.Minute
)

const (
	EvictTTL      = "ttl"
	EvictCapacity = "capacity"
)

// Entry is immutable once inserted.
type Entry struct {
	Bounds     model.ViewportBounds
	Features   []model.GeologicalFeature
	Formations []model.FormationSummary
	Timestamp  time.Time
}

func (e Entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) >= ttl
}

// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	entries    []Entry
	maxEntries int
	ttl        time.Duration
	onEvict    func(reason string, e Entry)
}

func NewStore(maxEntries int, ttl time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries:    make([]Entry, 0, maxEntries+1),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// OnEvict registers a callback invoked for every entry leaving the store.
func (s *Store) OnEvict(fn func(reason string, e Entry)) { s.onEvict = fn }

func (s *Store) MaxEntries() int    { return s.maxEntries }
func (s *Store) TTL() time.Duration { return s.ttl }
func (s *Store) Len() int           { return len(s.entries) }

// SweepExpired removes every entry whose age is at least the TTL and
// returns how many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.expired(now, s.ttl) {
			if s.onEvict != nil {
				s.onEvict(EvictTTL, e)
			}
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.entries) - len(kept)
	// release payload references held by the tail
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = Entry{}
	}
	s.entries = kept
	return removed
}

// Insert appends e. When the store overflows, the single oldest entry is
// evicted regardless of its expiry and returned with ok=true.
func (s *Store) Insert(e Entry) (evicted Entry, ok bool) {
	s.entries = append(s.entries, e)
	if len(s.entries) <= s.maxEntries {
		return Entry{}, false
	}
	evicted = s.entries[0]
	copy(s.entries, s.entries[1:])
	s.entries[len(s.entries)-1] = Entry{}
	s.entries = s.entries[:len(s.entries)-1]
	if s.onEvict != nil {
		s.onEvict(EvictCapacity, evicted)
	}
	return evicted, true
}

// Entries returns a copy in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
