package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

// QueueWriter owns the per-service pending queue files under a single
// directory, one JSON file per service. The file schema is the hand-off
// contract with the external investigator, which reads a queue and clears
// it as a unit when the investigation completes.
type QueueWriter struct {
	dir string
}

// NewQueueWriter creates a writer rooted at dir.
func NewQueueWriter(dir string) *QueueWriter {
	return &QueueWriter{dir: dir}
}

func (w *QueueWriter) queuePath(service string) string {
	return filepath.Join(w.dir, sanitizeServiceName(service)+".json")
}

// Path returns the queue file path for service. External consumers get
// the path from here so name sanitization stays in one place.
func (w *QueueWriter) Path(service string) string {
	return w.queuePath(service)
}

// Enqueue merges the cycle's new entries into the service's queue. Entries
// left over from a prior, not-yet-cleared cycle are kept; duplicates are
// dropped by signature with the earlier entry winning. The write replaces
// the queue file atomically.
func (w *QueueWriter) Enqueue(service string, entries []model.QueueEntry, generatedAt time.Time) error {
	queue, _, err := w.Load(service)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(queue.Errors))
	for _, existing := range queue.Errors {
		seen[existing.Signature] = true
	}
	for _, entry := range entries {
		if seen[entry.Signature] {
			continue
		}
		seen[entry.Signature] = true
		queue.Errors = append(queue.Errors, entry)
	}

	queue.Service = service
	queue.GeneratedAt = generatedAt
	return saveJSON(w.queuePath(service), queue)
}

// Load reads the service's queue. The second return reports whether a
// queue file exists; a corrupt file is an empty existing queue.
func (w *QueueWriter) Load(service string) (model.PendingQueue, bool, error) {
	path := w.queuePath(service)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return model.PendingQueue{Service: service}, false, nil
		}
		return model.PendingQueue{}, false, fmt.Errorf("registry: stat %s: %w", path, err)
	}

	queue := model.PendingQueue{Service: service}
	loadJSON(path, &queue)
	return queue, true, nil
}

// Clear deletes the service's queue entirely. Clearing an absent queue is
// not an error.
func (w *QueueWriter) Clear(service string) error {
	err := os.Remove(w.queuePath(service))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("registry: clear queue for %s: %w", service, err)
	}
	return nil
}

// List reports entry counts per service for every existing queue.
func (w *QueueWriter) List() (map[string]int, error) {
	counts := map[string]int{}
	err := w.eachQueue(func(queue model.PendingQueue, _ os.FileInfo) {
		counts[queue.Service] = len(queue.Errors)
	})
	return counts, err
}

// StaleServices returns services whose queue file is older than threshold:
// investigations that were handed off but never cleared, so they need to
// be retried.
func (w *QueueWriter) StaleServices(threshold time.Duration, now time.Time) ([]string, error) {
	var stale []string
	err := w.eachQueue(func(queue model.PendingQueue, info os.FileInfo) {
		if now.Sub(info.ModTime()) > threshold {
			stale = append(stale, queue.Service)
		}
	})
	sort.Strings(stale)
	return stale, err
}

func (w *QueueWriter) eachQueue(fn func(model.PendingQueue, os.FileInfo)) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read queue dir %s: %w", w.dir, err)
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".json") {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		queue := model.PendingQueue{}
		loadJSON(filepath.Join(w.dir, dirEntry.Name()), &queue)
		if queue.Service == "" {
			// Corrupt file; fall back to the file name.
			queue.Service = strings.TrimSuffix(dirEntry.Name(), ".json")
		}
		fn(queue, info)
	}
	return nil
}
