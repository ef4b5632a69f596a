package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vigilops/vigil/internal/model"
)

// replayMaxLineSize bounds a single replay line (large tracebacks included).
const replayMaxLineSize = 1024 * 1024

// ReplayProvider reads Cloud Logging entries from a JSON-lines file: one
// entry per line, as produced by a log export. It serves air-gapped runs
// and tests.
type ReplayProvider struct {
	path string
}

// NewReplayProvider validates that the replay file exists.
func NewReplayProvider(path string) (*ReplayProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("provider: replay path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("provider: replay file: %w", err)
	}
	return &ReplayProvider{path: path}, nil
}

func (p *ReplayProvider) Name() string { return "file" }

// Fetch returns the entries whose timestamps fall inside the window, in
// file order.
func (p *ReplayProvider) Fetch(ctx context.Context, window model.Window) ([]model.LogRecord, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("provider: open replay file: %w", err)
	}
	defer f.Close()

	var records []model.LogRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, replayMaxLineSize), replayMaxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record, err := ParseCloudLoggingEntry(json.RawMessage(line))
		if err != nil {
			continue
		}
		if !record.Timestamp.IsZero() && !window.Contains(record.Timestamp) {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("provider: scan replay file: %w", err)
	}
	return records, nil
}
