package model

import (
	"encoding/json"
	"time"
)

// UnknownErrorType is the classifier sentinel used when no error-type
// pattern matches a record's message or traceback.
const UnknownErrorType = "Unknown"

// LogRecord is the canonical provider-normalized log entry. Provider
// adapters translate their native envelope (Cloud Logging entry, OTLP log
// record, replay line) into this shape before the core sees it.
type LogRecord struct {
	Severity  string
	Timestamp time.Time
	Service   string
	Revision  string
	Labels    map[string]string
	Payload   Payload
	Raw       json.RawMessage // original provider envelope, kept for queue samples
}

// PayloadKind discriminates the two payload variants a provider can emit.
type PayloadKind int

const (
	// PayloadFlatText is a plain text body (Cloud Logging textPayload).
	PayloadFlatText PayloadKind = iota
	// PayloadStructured is a structured body with well-known error fields.
	PayloadStructured
)

// Payload is the tagged union over flat-text and structured log bodies.
// The variant is resolved once at the provider boundary so the extractor
// never guesses at optional fields.
type Payload struct {
	Kind       PayloadKind
	Text       string
	Message    string
	Traceback  string
	StackTrace string
	Exception  string
}

// FlatText builds the plain-text payload variant.
func FlatText(text string) Payload {
	return Payload{Kind: PayloadFlatText, Text: text}
}

// ErrorInfo is the normalized error tuple derived from one LogRecord.
// It lives only for the duration of a poll cycle: once the signature is
// computed and any queue entry written, it is discarded.
type ErrorInfo struct {
	Severity           string
	ErrorType          string
	Message            string
	Traceback          string
	FirstTracebackLine string
	AffectedFunction   string
	Service            string
	Revision           string
	Timestamp          time.Time
	Labels             map[string]string
	Raw                json.RawMessage
}

// SeenEntry is the persisted dedup record for one signature.
type SeenEntry struct {
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
	Service         string    `json:"service"`
	ErrorType       string    `json:"error_type"`
}

// Status is the investigation lifecycle state of a signature.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Rank orders statuses for the monotonic-advance invariant. Unknown
// statuses rank below pending so corrupt values never block progress.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusInProgress:
		return 2
	case StatusDone:
		return 3
	default:
		return 0
	}
}

// StatusEntry is the persisted lifecycle record for one signature.
type StatusEntry struct {
	Status      Status     `json:"status"`
	Service     string     `json:"service"`
	ErrorType   string     `json:"error_type"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QueueEntry is one distinct error awaiting investigation. The JSON field
// names are the hand-off contract with the external investigator and must
// stay stable.
type QueueEntry struct {
	Signature       string            `json:"signature"`
	FirstSeen       time.Time         `json:"first_seen"`
	OccurrenceCount int               `json:"occurrence_count"`
	Severity        string            `json:"severity"`
	ErrorType       string            `json:"error_type"`
	Message         string            `json:"message"`
	Traceback       string            `json:"traceback"`
	Labels          map[string]string `json:"labels,omitempty"`
	Sample          json.RawMessage   `json:"sample,omitempty"`
}

// PendingQueue is the per-service queue file schema.
type PendingQueue struct {
	Service     string       `json:"service"`
	GeneratedAt time.Time    `json:"generated_at"`
	Errors      []QueueEntry `json:"errors"`
}

// Checkpoint records the end of the last completed poll cycle.
type Checkpoint struct {
	LastPollTime time.Time `json:"last_poll_time"`
	ErrorsFound  int       `json:"errors_found"`
}

// Window is the half-open time range [Start, End) a cycle queries logs for.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ServiceSummary aggregates one cycle's new errors for a single service.
type ServiceSummary struct {
	Service    string         `json:"service"`
	NewErrors  int            `json:"new_errors"`
	ErrorTypes map[string]int `json:"error_types"`
}

// CycleResult is what one poll cycle reports to the caller.
type CycleResult struct {
	WindowStart    time.Time                 `json:"window_start"`
	WindowEnd      time.Time                 `json:"window_end"`
	RecordsFetched int                       `json:"records_fetched"`
	FetchFailed    bool                      `json:"fetch_failed,omitempty"`
	NewByService   map[string]ServiceSummary `json:"new_by_service,omitempty"`
	StaleServices  []string                  `json:"stale_services,omitempty"`
	LaunchServices []string                  `json:"launch_services,omitempty"`
}

// TotalNewErrors sums distinct new errors across services.
func (r CycleResult) TotalNewErrors() int {
	total := 0
	for _, s := range r.NewByService {
		total += s.NewErrors
	}
	return total
}

// KnownService is one entry of the known-services registry. Workspace and
// Workflow are opaque to the triage core; they are passed through to the
// launch hook.
type KnownService struct {
	Workspace string `yaml:"workspace"`
	Workflow  string `yaml:"workflow,omitempty"`
}
