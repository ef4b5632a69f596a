// Package poll ties one cycle together: fetch, extract, sign, dedupe,
// queue, stale-work detection, checkpointing, and the launch decision.
package poll

import (
	"context"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vigilops/vigil/internal/extract"
	"github.com/vigilops/vigil/internal/logparse"
	"github.com/vigilops/vigil/internal/model"
	"github.com/vigilops/vigil/internal/provider"
	"github.com/vigilops/vigil/internal/registry"
	"github.com/vigilops/vigil/internal/signature"
)

// Occurrence is one archived error occurrence.
type Occurrence struct {
	Signature string
	Service   string
	ErrorType string
	Severity  string
	Timestamp time.Time
	IsNew     bool
}

// Archiver records every occurrence for historical reporting. Archive
// failures never fail a cycle.
type Archiver interface {
	InsertOccurrences(occurrences []Occurrence) error
	Sweep(now time.Time) error
}

// HistoryAppender records one line per completed cycle.
type HistoryAppender interface {
	Append(result model.CycleResult) error
}

// Config parameterizes the poller.
type Config struct {
	StateDir           string
	KnownServices      map[string]model.KnownService
	Interval           time.Duration
	StalenessThreshold time.Duration
	CheckpointBuffer   time.Duration
	SeenRetentionDays  int
	ExtractWorkers     int // 0 = GOMAXPROCS

	Archiver Archiver        // optional
	History  HistoryAppender // optional
}

// Poller runs poll cycles against the file-backed registries under
// StateDir. Registries are re-opened every cycle so status flips and
// queue clears written by the external investigator (a separate process)
// are observed.
type Poller struct {
	cfg      Config
	provider provider.Provider

	// mu serializes cycles: a manual trigger overlapping the scheduled
	// one must not interleave registry mutations.
	mu sync.Mutex
}

// StateLock returns the lock serializing registry mutations. The HTTP
// API shares it so claims and cycles do not interleave writes.
func (p *Poller) StateLock() sync.Locker { return &p.mu }

// New creates a poller for the given provider.
func New(cfg Config, prov provider.Provider) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultPollInterval
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = model.DefaultStalenessThreshold
	}
	if cfg.CheckpointBuffer <= 0 {
		cfg.CheckpointBuffer = model.DefaultCheckpointBuffer
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = runtime.GOMAXPROCS(0)
	}
	return &Poller{cfg: cfg, provider: prov}
}

// Paths inside the state directory.
func (p *Poller) seenPath() string       { return filepath.Join(p.cfg.StateDir, "seen.json") }
func (p *Poller) statusPath() string     { return filepath.Join(p.cfg.StateDir, "status.json") }
func (p *Poller) checkpointPath() string { return filepath.Join(p.cfg.StateDir, "checkpoint.json") }
func (p *Poller) queueDir() string       { return filepath.Join(p.cfg.StateDir, "queues") }

// RunCycle executes one full poll cycle ending at now. A provider fetch
// failure degrades to zero records: stale-queue detection still runs and
// the checkpoint is left in place so the missed window is retried. Only
// registry write failures are returned as errors.
func (p *Poller) RunCycle(ctx context.Context, now time.Time) (model.CycleResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := registry.OpenSeenStore(p.seenPath())
	status := registry.OpenStatusTracker(p.statusPath())
	queues := registry.NewQueueWriter(p.queueDir())
	checkpoint, haveCheckpoint := registry.LoadCheckpoint(p.checkpointPath())

	window := registry.NextWindow(checkpoint, haveCheckpoint, now, p.cfg.Interval, p.cfg.CheckpointBuffer)
	result := model.CycleResult{
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		NewByService: map[string]model.ServiceSummary{},
	}

	records, err := p.provider.Fetch(ctx, window)
	if err != nil {
		// Recoverable: a fetch failure must not mask stuck investigations.
		log.Printf("poll: fetch from %s failed: %v (continuing with zero records)", p.provider.Name(), err)
		result.FetchFailed = true
		records = nil
	}
	result.RecordsFetched = len(records)

	infos := p.extractAll(ctx, records)

	// The dedup pass is strictly sequential and in batch order: when two
	// records in one batch share a signature, only the first is new.
	batches := map[string][]model.QueueEntry{}
	var occurrences []Occurrence
	for _, info := range infos {
		if _, known := p.cfg.KnownServices[info.Service]; !known {
			continue
		}
		if !logparse.IsErrorSeverity(info.Severity) {
			continue
		}

		sig := signature.Sign(info.Severity, info.ErrorType, info.FirstTracebackLine, info.AffectedFunction)
		recorded := seen.Record(sig, now, info.Service, info.ErrorType)
		occurrences = append(occurrences, Occurrence{
			Signature: sig,
			Service:   info.Service,
			ErrorType: info.ErrorType,
			Severity:  info.Severity,
			Timestamp: info.Timestamp,
			IsNew:     recorded.IsNew,
		})
		if !recorded.IsNew {
			continue
		}

		status.Initialize(sig, info.Service, info.ErrorType, now)
		batches[info.Service] = append(batches[info.Service], model.QueueEntry{
			Signature:       sig,
			FirstSeen:       now,
			OccurrenceCount: recorded.OccurrenceCount,
			Severity:        info.Severity,
			ErrorType:       info.ErrorType,
			Message:         info.Message,
			Traceback:       info.Traceback,
			Labels:          info.Labels,
			Sample:          info.Raw,
		})

		summary, ok := result.NewByService[info.Service]
		if !ok {
			summary = model.ServiceSummary{Service: info.Service, ErrorTypes: map[string]int{}}
		}
		summary.NewErrors++
		summary.ErrorTypes[info.ErrorType]++
		result.NewByService[info.Service] = summary
	}

	// One queue write per service per cycle, in discovery order within
	// each queue.
	for service, entries := range batches {
		if err := queues.Enqueue(service, entries, now); err != nil {
			return result, err
		}
	}

	// Stale detection runs regardless of fetch outcome: queues written in
	// earlier cycles but never cleared represent investigations that
	// crashed or were never launched.
	stale, err := queues.StaleServices(p.cfg.StalenessThreshold, now)
	if err != nil {
		log.Printf("poll: stale queue scan failed: %v", err)
	}
	result.StaleServices = stale
	result.LaunchServices = launchSet(result.NewByService, stale)

	if p.cfg.SeenRetentionDays > 0 {
		cutoff := now.Add(-time.Duration(p.cfg.SeenRetentionDays) * 24 * time.Hour)
		if dropped := seen.Evict(cutoff); dropped > 0 {
			log.Printf("poll: evicted %d seen entries older than %d days", dropped, p.cfg.SeenRetentionDays)
		}
	}

	if err := seen.Save(); err != nil {
		return result, err
	}
	if err := status.Save(); err != nil {
		return result, err
	}
	if !result.FetchFailed {
		cp := model.Checkpoint{LastPollTime: now, ErrorsFound: result.TotalNewErrors()}
		if err := registry.SaveCheckpoint(p.checkpointPath(), cp); err != nil {
			return result, err
		}
	}

	if p.cfg.Archiver != nil {
		if err := p.cfg.Archiver.InsertOccurrences(occurrences); err != nil {
			log.Printf("poll: archive insert failed: %v", err)
		}
		if err := p.cfg.Archiver.Sweep(now); err != nil {
			log.Printf("poll: archive sweep failed: %v", err)
		}
	}
	if p.cfg.History != nil {
		if err := p.cfg.History.Append(result); err != nil {
			log.Printf("poll: history append failed: %v", err)
		}
	}

	return result, nil
}

// extractAll fans record extraction out over a bounded worker pool.
// Extraction is pure, so only the fan-out is concurrent; results keep
// batch order so the sequential dedup pass sees records as received.
func (p *Poller) extractAll(ctx context.Context, records []model.LogRecord) []model.ErrorInfo {
	if len(records) == 0 {
		return nil
	}

	infos := make([]model.ErrorInfo, len(records))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ExtractWorkers)
	for i, record := range records {
		g.Go(func() error {
			infos[i] = extract.Extract(record)
			return nil
		})
	}
	// Workers never return errors; Wait is for completion only.
	_ = g.Wait()
	return infos
}

func launchSet(newByService map[string]model.ServiceSummary, stale []string) []string {
	set := map[string]bool{}
	for service := range newByService {
		set[service] = true
	}
	for _, service := range stale {
		set[service] = true
	}
	launch := make([]string, 0, len(set))
	for service := range set {
		launch = append(launch, service)
	}
	sort.Strings(launch)
	return launch
}
