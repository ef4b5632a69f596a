package registry

import (
	"errors"
	"sort"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

// ErrUnknownSignature is returned when a lifecycle transition targets a
// signature the tracker has never seen.
var ErrUnknownSignature = errors.New("registry: unknown signature")

// StatusTracker records the investigation lifecycle of each signature:
// pending, then in_progress once an investigation claims it, then done.
// Status only ever advances; transitions into the current state are
// harmless no-ops.
type StatusTracker struct {
	path    string
	entries map[string]model.StatusEntry
}

// OpenStatusTracker loads the status registry at path. A missing or
// corrupt file yields an empty tracker.
func OpenStatusTracker(path string) *StatusTracker {
	t := &StatusTracker{
		path:    path,
		entries: map[string]model.StatusEntry{},
	}
	loadJSON(path, &t.entries)
	return t
}

// Initialize creates a pending entry for a newly seen signature. It is a
// no-op when the signature already has an entry, whatever its state, so a
// replayed cycle can never regress a claimed or completed investigation.
func (t *StatusTracker) Initialize(sig, service, errorType string, now time.Time) {
	if _, ok := t.entries[sig]; ok {
		return
	}
	t.entries[sig] = model.StatusEntry{
		Status:    model.StatusPending,
		Service:   service,
		ErrorType: errorType,
		CreatedAt: now,
	}
}

// MarkInProgress claims the signature for investigation. Already claimed
// or completed entries are left untouched.
func (t *StatusTracker) MarkInProgress(sig string, now time.Time) error {
	entry, ok := t.entries[sig]
	if !ok {
		return ErrUnknownSignature
	}
	if entry.Status.Rank() >= model.StatusInProgress.Rank() {
		return nil
	}
	entry.Status = model.StatusInProgress
	started := now
	entry.StartedAt = &started
	t.entries[sig] = entry
	return nil
}

// MarkDone completes the signature's investigation. When the entry was
// never explicitly claimed, started_at is backfilled so completed_at can
// never precede it.
func (t *StatusTracker) MarkDone(sig string, now time.Time) error {
	entry, ok := t.entries[sig]
	if !ok {
		return ErrUnknownSignature
	}
	if entry.Status == model.StatusDone {
		return nil
	}
	if entry.StartedAt == nil {
		started := now
		entry.StartedAt = &started
	}
	entry.Status = model.StatusDone
	completed := now
	entry.CompletedAt = &completed
	t.entries[sig] = entry
	return nil
}

// Get returns the entry for a signature.
func (t *StatusTracker) Get(sig string) (model.StatusEntry, bool) {
	entry, ok := t.entries[sig]
	return entry, ok
}

// ListByStatus returns the signatures currently in the given state,
// sorted for deterministic output.
func (t *StatusTracker) ListByStatus(status model.Status) []string {
	var sigs []string
	for sig, entry := range t.entries {
		if entry.Status == status {
			sigs = append(sigs, sig)
		}
	}
	sort.Strings(sigs)
	return sigs
}

// Save persists the tracker.
func (t *StatusTracker) Save() error {
	return saveJSON(t.path, t.entries)
}
