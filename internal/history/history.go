// Package history keeps a durable append-only journal of poll cycles.
// Each cycle is one JSON line; readers tolerate a partially written
// trailing line so a crash mid-append never poisons the file.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// Entry is one journaled cycle with the time it was recorded.
type Entry struct {
	RecordedAt time.Time         `json:"recorded_at"`
	Result     model.CycleResult `json:"result"`
}

// Journal appends cycle results to a JSON-lines file.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates or opens the cycle journal at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("history: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return &Journal{path: path, file: f}, nil
}

// Append persists one cycle result.
func (j *Journal) Append(result model.CycleResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("history: journal is closed")
	}

	line, err := json.Marshal(Entry{RecordedAt: time.Now().UTC(), Result: result})
	if err != nil {
		return fmt.Errorf("history: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("history: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("history: sync entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest last. limit <= 0 returns all.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	path := j.path
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open for read: %w", err)
	}
	defer f.Close()

	var entries []Entry
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("history: read: %w", err)
		}
		if len(line) == 0 {
			break
		}
		if line[len(line)-1] != '\n' {
			// Partial trailing line from an interrupted append.
			break
		}
		var e Entry
		if uerr := json.Unmarshal(line, &e); uerr != nil {
			break
		}
		entries = append(entries, e)
		if errors.Is(err, io.EOF) {
			break
		}
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
