package liveview

import (
	"sync"
)

// Record is one row of a live view, keyed by its "id" field.
type Record map[string]interface{}

// Visibility decides whether an inserted record belongs in this view. The
// store evaluates it client side because the feed itself is table-wide.
type Visibility func(Record) bool

// Store is a materialized view of one table, kept consistent by folding the
// change feed into local state. There is exactly one writer per view (the
// subscriber goroutine); readers take snapshots.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string // newest first
	visible Visibility
}

// NewStore creates a view. A nil visibility admits everything.
func NewStore(visible Visibility) *Store {
	if visible == nil {
		visible = func(Record) bool { return true }
	}
	return &Store{
		records: make(map[string]Record),
		visible: visible,
	}
}

// ApplyInsert prepends a record if the view's visibility rules admit it.
// A duplicate insert for a known id is folded as an update instead, which
// keeps replayed feeds idempotent.
func (s *Store) ApplyInsert(rec Record) {
	id, ok := recordID(rec)
	if !ok || !s.visible(rec) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, known := s.records[id]; known {
		merge(existing, rec)
		return
	}
	copied := make(Record, len(rec))
	merge(copied, rec)
	s.records[id] = copied
	s.order = append([]string{id}, s.order...)
}

// ApplyUpdate merges the event's fields into the matching local record.
// Fields absent from the event payload are preserved, so locally-known
// relations are never clobbered. An update for an id the view has not seen
// is dropped; the next full refetch picks it up.
func (s *Store) ApplyUpdate(rec Record) {
	id, ok := recordID(rec)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, known := s.records[id]
	if !known {
		return
	}
	merge(existing, rec)
}

// Replace swaps the whole view for the result of a full refetch.
func (s *Store) Replace(recs []Record) {
	records := make(map[string]Record, len(recs))
	order := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, ok := recordID(rec)
		if !ok || !s.visible(rec) {
			continue
		}
		copied := make(Record, len(rec))
		merge(copied, rec)
		records[id] = copied
		order = append(order, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.order = order
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	copied := make(Record, len(rec))
	merge(copied, rec)
	return copied, true
}

// Snapshot returns the view's records, newest first.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		copied := make(Record, len(rec))
		merge(copied, rec)
		out = append(out, copied)
	}
	return out
}

// Len returns the number of records in the view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func recordID(rec Record) (string, bool) {
	id, ok := rec["id"].(string)
	return id, ok && id != ""
}

func merge(dst, src Record) {
	for k, v := range src {
		dst[k] = v
	}
}
