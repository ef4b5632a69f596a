package poll

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/model"
	"github.com/vigilops/vigil/internal/registry"
)

type fakeProvider struct {
	records    []model.LogRecord
	err        error
	lastWindow model.Window
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Fetch(_ context.Context, window model.Window) ([]model.LogRecord, error) {
	f.lastWindow = window
	return f.records, f.err
}

type fakeArchiver struct {
	occurrences []Occurrence
	swept       bool
}

func (f *fakeArchiver) InsertOccurrences(occurrences []Occurrence) error {
	f.occurrences = append(f.occurrences, occurrences...)
	return nil
}

func (f *fakeArchiver) Sweep(time.Time) error {
	f.swept = true
	return nil
}

type fakeHistory struct {
	appended []model.CycleResult
}

func (f *fakeHistory) Append(result model.CycleResult) error {
	f.appended = append(f.appended, result)
	return nil
}

func errorRecord(service, text string, ts time.Time) model.LogRecord {
	return model.LogRecord{
		Severity:  "ERROR",
		Timestamp: ts,
		Service:   service,
		Payload:   model.FlatText(text),
	}
}

func testConfig(stateDir string) Config {
	return Config{
		StateDir: stateDir,
		KnownServices: map[string]model.KnownService{
			"svc-a": {Workspace: "/work/a"},
			"svc-b": {Workspace: "/work/b"},
		},
		Interval:           5 * time.Minute,
		StalenessThreshold: 10 * time.Minute,
		CheckpointBuffer:   30 * time.Second,
	}
}

func TestRunCycleNewErrorDiscovery(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ts := now.Add(-time.Minute)

	// Three distinct signatures, one of them occurring three times.
	prov := &fakeProvider{records: []model.LogRecord{
		errorRecord("svc-a", "KeyError: 'user_id'\n  File app.py, line 55 in handler", ts),
		errorRecord("svc-a", "KeyError: 'user_id'\n  File app.py, line 71 in handler", ts),
		errorRecord("svc-a", "ValueError: bad input\n  File app.py, line 10 in validate", ts),
		errorRecord("svc-b", "TypeError: NoneType\n  File web.py, line 3 in render", ts),
		errorRecord("svc-a", "KeyError: 'user_id'\n  File app.py, line 99 in handler", ts),
	}}

	stateDir := t.TempDir()
	poller := New(testConfig(stateDir), prov)
	result, err := poller.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if got := result.TotalNewErrors(); got != 3 {
		t.Errorf("total new = %d, want 3", got)
	}
	if result.NewByService["svc-a"].NewErrors != 2 {
		t.Errorf("svc-a new = %d, want 2", result.NewByService["svc-a"].NewErrors)
	}
	if result.NewByService["svc-b"].NewErrors != 1 {
		t.Errorf("svc-b new = %d, want 1", result.NewByService["svc-b"].NewErrors)
	}

	queues := registry.NewQueueWriter(filepath.Join(stateDir, "queues"))
	queue, exists, err := queues.Load("svc-a")
	if err != nil || !exists {
		t.Fatalf("Load svc-a queue: exists=%v err=%v", exists, err)
	}
	if len(queue.Errors) != 2 {
		t.Fatalf("svc-a queue has %d entries, want 2 (no duplicates): %+v", len(queue.Errors), queue.Errors)
	}
	// The repeated error was queued once, with its count snapshot at
	// first detection.
	if queue.Errors[0].ErrorType != "KeyError" || queue.Errors[0].OccurrenceCount != 1 {
		t.Errorf("first entry = %+v", queue.Errors[0])
	}

	seen := registry.OpenSeenStore(filepath.Join(stateDir, "seen.json"))
	entry, ok := seen.Get(queue.Errors[0].Signature)
	if !ok {
		t.Fatal("repeated signature missing from seen store")
	}
	if entry.OccurrenceCount != 3 {
		t.Errorf("repeated signature count = %d, want 3", entry.OccurrenceCount)
	}
}

func TestRunCycleSameSignatureAcrossLineNumbers(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	prov := &fakeProvider{records: []model.LogRecord{
		errorRecord("svc-a", "KeyError: 'user_id'\n  File app.py, line 55 in handler", now.Add(-time.Minute)),
		errorRecord("svc-a", "KeyError: 'user_id'\n  File app.py, line 71 in handler", now.Add(-time.Minute)),
	}}

	stateDir := t.TempDir()
	poller := New(testConfig(stateDir), prov)
	if _, err := poller.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	queues := registry.NewQueueWriter(filepath.Join(stateDir, "queues"))
	queue, _, err := queues.Load("svc-a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queue.Errors) != 1 {
		t.Fatalf("queue entries = %d, want 1 (line numbers normalize away)", len(queue.Errors))
	}

	seen := registry.OpenSeenStore(filepath.Join(stateDir, "seen.json"))
	entry, _ := seen.Get(queue.Errors[0].Signature)
	if entry.OccurrenceCount != 2 {
		t.Errorf("occurrence count = %d, want 2", entry.OccurrenceCount)
	}
}

func TestRunCycleSkipsUnknownServicesAndNonErrors(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	prov := &fakeProvider{records: []model.LogRecord{
		errorRecord("svc-unknown", "KeyError: 'x'", now.Add(-time.Minute)),
		{
			Severity:  "INFO",
			Timestamp: now.Add(-time.Minute),
			Service:   "svc-a",
			Payload:   model.FlatText("healthy"),
		},
	}}

	stateDir := t.TempDir()
	poller := New(testConfig(stateDir), prov)
	result, err := poller.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.TotalNewErrors() != 0 {
		t.Errorf("new errors = %d, want 0", result.TotalNewErrors())
	}

	seen := registry.OpenSeenStore(filepath.Join(stateDir, "seen.json"))
	if seen.Len() != 0 {
		t.Errorf("seen registry mutated for filtered records: %d entries", seen.Len())
	}
	queues := registry.NewQueueWriter(filepath.Join(stateDir, "queues"))
	counts, err := queues.List()
	if err != nil || len(counts) != 0 {
		t.Errorf("queues = %v, want none", counts)
	}
}

func TestRunCycleSecondCycleSeesNothingNew(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	prov := &fakeProvider{records: []model.LogRecord{
		errorRecord("svc-a", "KeyError: 'x'\n  File app.py, line 5 in f", now.Add(-time.Minute)),
	}}

	stateDir := t.TempDir()
	poller := New(testConfig(stateDir), prov)

	first, err := poller.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("first RunCycle: %v", err)
	}
	if first.TotalNewErrors() != 1 {
		t.Fatalf("first cycle new = %d, want 1", first.TotalNewErrors())
	}

	second, err := poller.RunCycle(context.Background(), now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if second.TotalNewErrors() != 0 {
		t.Errorf("second cycle new = %d, want 0 (already seen)", second.TotalNewErrors())
	}
}

func TestRunCycleFetchFailure(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stateDir := t.TempDir()

	// Leave a stale queue behind, as if an investigation never completed.
	queues := registry.NewQueueWriter(filepath.Join(stateDir, "queues"))
	err := queues.Enqueue("svc-a", []model.QueueEntry{{Signature: "sig-1", ErrorType: "KeyError"}}, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	old := now.Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(stateDir, "queues", "svc-a.json"), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	// Seed a checkpoint so we can observe it not advancing.
	cpPath := filepath.Join(stateDir, "checkpoint.json")
	seeded := model.Checkpoint{LastPollTime: now.Add(-10 * time.Minute)}
	if err := registry.SaveCheckpoint(cpPath, seeded); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	prov := &fakeProvider{err: errors.New("network down")}
	poller := New(testConfig(stateDir), prov)
	result, err := poller.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle must not fail on fetch errors: %v", err)
	}

	if !result.FetchFailed {
		t.Error("FetchFailed not reported")
	}
	// Stale detection still ran.
	if len(result.StaleServices) != 1 || result.StaleServices[0] != "svc-a" {
		t.Errorf("stale = %v, want [svc-a]", result.StaleServices)
	}
	if len(result.LaunchServices) != 1 || result.LaunchServices[0] != "svc-a" {
		t.Errorf("launch = %v, want [svc-a]", result.LaunchServices)
	}
	// The checkpoint must not advance past the unfetched window.
	cp, ok := registry.LoadCheckpoint(cpPath)
	if !ok || !cp.LastPollTime.Equal(seeded.LastPollTime) {
		t.Errorf("checkpoint advanced to %v despite fetch failure", cp.LastPollTime)
	}
}

func TestRunCycleGapRecoveryWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stateDir := t.TempDir()

	last := now.Add(-2 * time.Hour)
	err := registry.SaveCheckpoint(filepath.Join(stateDir, "checkpoint.json"), model.Checkpoint{LastPollTime: last})
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	prov := &fakeProvider{}
	cfg := testConfig(stateDir)
	poller := New(cfg, prov)
	if _, err := poller.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	wantStart := last.Add(-cfg.CheckpointBuffer)
	if !prov.lastWindow.Start.Equal(wantStart) {
		t.Errorf("window start = %v, want back-dated %v", prov.lastWindow.Start, wantStart)
	}
}

func TestRunCycleStaleExcludesFreshQueues(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stateDir := t.TempDir()

	queues := registry.NewQueueWriter(filepath.Join(stateDir, "queues"))
	if err := queues.Enqueue("svc-a", []model.QueueEntry{{Signature: "sig-1"}}, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	poller := New(testConfig(stateDir), &fakeProvider{})
	result, err := poller.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(result.StaleServices) != 0 {
		t.Errorf("fresh queue reported stale: %v", result.StaleServices)
	}
}

func TestRunCycleArchiveAndHistory(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	prov := &fakeProvider{records: []model.LogRecord{
		errorRecord("svc-a", "KeyError: 'x'\n  File app.py, line 5 in f", now.Add(-time.Minute)),
		errorRecord("svc-a", "KeyError: 'x'\n  File app.py, line 9 in f", now.Add(-time.Minute)),
	}}

	archiver := &fakeArchiver{}
	history := &fakeHistory{}
	cfg := testConfig(t.TempDir())
	cfg.Archiver = archiver
	cfg.History = history

	poller := New(cfg, prov)
	if _, err := poller.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Every occurrence is archived, not just new ones.
	if len(archiver.occurrences) != 2 {
		t.Fatalf("archived %d occurrences, want 2", len(archiver.occurrences))
	}
	if !archiver.occurrences[0].IsNew || archiver.occurrences[1].IsNew {
		t.Errorf("IsNew flags = %v/%v, want true/false", archiver.occurrences[0].IsNew, archiver.occurrences[1].IsNew)
	}
	if !archiver.swept {
		t.Error("retention sweep not invoked")
	}
	if len(history.appended) != 1 {
		t.Errorf("history entries = %d, want 1", len(history.appended))
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	result := model.CycleResult{
		WindowStart:    time.Date(2024, 3, 1, 9, 55, 0, 0, time.UTC),
		WindowEnd:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		RecordsFetched: 5,
		NewByService: map[string]model.ServiceSummary{
			"svc-a": {Service: "svc-a", NewErrors: 2, ErrorTypes: map[string]int{"KeyError": 1, "ValueError": 1}},
		},
		StaleServices:  []string{"svc-b"},
		LaunchServices: []string{"svc-a", "svc-b"},
	}

	out := Summarize(result)
	for _, want := range []string{
		"5 records",
		"2 new distinct errors",
		"svc-a: 2 new (KeyError x1, ValueError x1)",
		"stale queues: svc-b",
		"launch investigation: svc-a, svc-b",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
