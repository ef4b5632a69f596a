package registry

import (
	"time"

	"github.com/vigilops/vigil/internal/model"
)

// SeenStore is the authoritative history of every distinct signature ever
// observed. It is the sole owner of occurrence counts and first/last-seen
// timestamps.
type SeenStore struct {
	path    string
	entries map[string]model.SeenEntry
}

// RecordResult reports the outcome of recording one occurrence.
type RecordResult struct {
	IsNew           bool
	OccurrenceCount int
}

// OpenSeenStore loads the seen registry at path. A missing or corrupt file
// yields an empty store.
func OpenSeenStore(path string) *SeenStore {
	s := &SeenStore{
		path:    path,
		entries: map[string]model.SeenEntry{},
	}
	loadJSON(path, &s.entries)
	return s
}

// IsKnown reports whether the signature has been recorded before.
func (s *SeenStore) IsKnown(sig string) bool {
	_, ok := s.entries[sig]
	return ok
}

// Record is the sole mutator: the first occurrence inserts an entry with
// count 1, re-occurrences advance last_seen and the count. first_seen is
// set once and never changes.
func (s *SeenStore) Record(sig string, now time.Time, service, errorType string) RecordResult {
	entry, ok := s.entries[sig]
	if !ok {
		s.entries[sig] = model.SeenEntry{
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: 1,
			Service:         service,
			ErrorType:       errorType,
		}
		return RecordResult{IsNew: true, OccurrenceCount: 1}
	}

	entry.LastSeen = now
	entry.OccurrenceCount++
	s.entries[sig] = entry
	return RecordResult{IsNew: false, OccurrenceCount: entry.OccurrenceCount}
}

// Get returns the entry for a signature.
func (s *SeenStore) Get(sig string) (model.SeenEntry, bool) {
	entry, ok := s.entries[sig]
	return entry, ok
}

// Len returns the number of distinct signatures recorded.
func (s *SeenStore) Len() int {
	return len(s.entries)
}

// Evict removes entries whose last occurrence is older than cutoff and
// returns how many were dropped. A signature evicted here will be treated
// as new if it ever recurs; that is the accepted cost of bounding growth.
func (s *SeenStore) Evict(cutoff time.Time) int {
	dropped := 0
	for sig, entry := range s.entries {
		if entry.LastSeen.Before(cutoff) {
			delete(s.entries, sig)
			dropped++
		}
	}
	return dropped
}

// Save persists the registry. Write failures are fatal for the cycle's
// side effects: losing them would make every future cycle re-detect the
// same signatures as new.
func (s *SeenStore) Save() error {
	return saveJSON(s.path, s.entries)
}
