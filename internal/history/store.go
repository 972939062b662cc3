// Package history holds the ordered, capacity- and pin-aware collection of
// clipboard captures.
//
// Every mutation runs two dedup stages under a single lock:
//
//   - Stage A (Insert only): same-hash entries captured within the dedup
//     window of the new entry are removed, then the new entry goes to the
//     front.
//   - Stage B (always): collapse duplicates across the whole collection
//     keeping the first seen, evict non-pinned entries beyond the limit,
//     then sort pinned first and newest first.
//
// Stage B collapses same-hash entries regardless of age, so a capture
// repeated after the window still ends up as a single (newest) entry.
package history

import (
	"slices"
	"sync"
	"time"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/errors"
)

// Defaults for a new Store.
const (
	DefaultLimit       = 100
	DefaultDedupWindow = 3 * time.Minute
)

// Store is safe for concurrent use. Callers never see its lock.
type Store struct {
	mu          sync.Mutex
	entries     []capture.Entry
	limit       int
	dedupWindow time.Duration
}

// New creates an empty Store. limit must be > 0.
func New(limit int, dedupWindow time.Duration) (*Store, error) {
	if limit <= 0 {
		return nil, errors.NewInvalidConfig("history_limit", "must be greater than 0")
	}
	if dedupWindow < 0 {
		return nil, errors.NewInvalidConfig("dedup_window", "must not be negative")
	}
	return &Store{
		entries:     make([]capture.Entry, 0),
		limit:       limit,
		dedupWindow: dedupWindow,
	}, nil
}

// Insert adds e at the most-recent position after Stage A suppression.
func (s *Store) Insert(e capture.Entry) {
	e = e.Clone()
	e.FillDerived()

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]capture.Entry, 0, len(s.entries)+1)
	kept = append(kept, e)
	for _, old := range s.entries {
		if e.ContentHash != "" && old.ContentHash == e.ContentHash &&
			e.Timestamp.Sub(old.Timestamp) <= s.dedupWindow {
			continue
		}
		kept = append(kept, old)
	}
	s.entries = kept
	s.normalize()
}

// Delete removes the entry with id. It reports whether it was found.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, idx, idx+1)
	s.normalize()
	return true
}

// SetPinned toggles the pin state of id. It reports whether it was found.
func (s *Store) SetPinned(id string, pinned bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.entries[idx].Pinned = pinned
	s.normalize()
	return true
}

// Clear removes all entries, or all but pinned ones when keepPinned is set.
// It returns how many entries were removed.
func (s *Store) Clear(keepPinned bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)
	if keepPinned {
		s.entries = slices.DeleteFunc(s.entries, func(e capture.Entry) bool { return !e.Pinned })
	} else {
		s.entries = make([]capture.Entry, 0)
	}
	s.normalize()
	return before - len(s.entries)
}

// SetLimit changes the capacity for non-pinned entries. n <= 0 is rejected
// and leaves the store unchanged.
func (s *Store) SetLimit(n int) error {
	if n <= 0 {
		return errors.NewInvalidConfig("history_limit", "must be greater than 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = n
	s.normalize()
	return nil
}

// Limit returns the current capacity.
func (s *Store) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// SetDedupWindow changes the Stage A suppression window.
func (s *Store) SetDedupWindow(d time.Duration) error {
	if d < 0 {
		return errors.NewInvalidConfig("dedup_window", "must not be negative")
	}
	s.mu.Lock()
	s.dedupWindow = d
	s.mu.Unlock()
	return nil
}

// DedupWindow returns the current Stage A window.
func (s *Store) DedupWindow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dedupWindow
}

// List returns a copy of the entries in display order.
func (s *Store) List() []capture.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]capture.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns a copy of the entry with id.
func (s *Store) Get(id string) (capture.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return capture.Entry{}, false
	}
	return s.entries[idx].Clone(), true
}

// Replace swaps the whole collection, e.g. after loading from persistence.
// The loaded order is kept as scan order for Stage B.
func (s *Store) Replace(entries []capture.Entry) {
	loaded := cloneAll(entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = loaded
	s.normalize()
}

// Import appends entries behind the current ones, so on conflict the
// existing entries win Stage B. Entries whose ID is already present are
// skipped. It returns how many imported entries survived.
func (s *Store) Import(entries []capture.Entry) int {
	incoming := cloneAll(entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		existing[e.ID] = true
	}
	for _, e := range incoming {
		if !existing[e.ID] {
			s.entries = append(s.entries, e)
		}
	}
	s.normalize()

	added := 0
	for _, e := range s.entries {
		if !existing[e.ID] {
			added++
		}
	}
	return added
}

func cloneAll(entries []capture.Entry) []capture.Entry {
	out := make([]capture.Entry, 0, len(entries))
	for _, e := range entries {
		c := e.Clone()
		c.FillDerived()
		out = append(out, c)
	}
	return out
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e capture.Entry) bool { return e.ID == id })
}

// normalize is Stage B. Caller must hold s.mu.
func (s *Store) normalize() {
	// 1. Dedup by content hash (raw text for legacy entries), first seen wins.
	seen := make(map[string]bool, len(s.entries))
	deduped := make([]capture.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		key := e.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, e)
	}

	// 2. Evict non-pinned beyond limit; pinned always survive.
	kept := deduped[:0]
	unpinned := 0
	for _, e := range deduped {
		if !e.Pinned {
			if unpinned >= s.limit {
				continue
			}
			unpinned++
		}
		kept = append(kept, e)
	}

	// 3. Pinned first, then newest first.
	slices.SortStableFunc(kept, func(a, b capture.Entry) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.Timestamp.Compare(a.Timestamp)
	})

	s.entries = kept
}
