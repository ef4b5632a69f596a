package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vigilops/vigil/internal/logparse"
	"github.com/vigilops/vigil/internal/model"
)

// cloudEntry mirrors the subset of a Cloud Logging entry the triage core
// needs. Everything else rides along in the raw envelope.
type cloudEntry struct {
	Severity         string                 `json:"severity"`
	Timestamp        string                 `json:"timestamp"`
	ReceiveTimestamp string                 `json:"receiveTimestamp"`
	TextPayload      string                 `json:"textPayload"`
	JSONPayload      map[string]interface{} `json:"jsonPayload"`
	Resource         struct {
		Type   string            `json:"type"`
		Labels map[string]string `json:"labels"`
	} `json:"resource"`
	Labels map[string]string `json:"labels"`
}

// ParseCloudLoggingEntry converts one Cloud Logging JSON entry into a
// LogRecord. Absent fields degrade to defaults; only malformed JSON is an
// error.
func ParseCloudLoggingEntry(raw json.RawMessage) (model.LogRecord, error) {
	var entry cloudEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.LogRecord{}, fmt.Errorf("provider: parse cloud logging entry: %w", err)
	}

	record := model.LogRecord{
		Severity: logparse.NormalizeSeverity(entry.Severity),
		Service:  entry.Resource.Labels["service_name"],
		Revision: entry.Resource.Labels["revision_name"],
		Labels:   mergeLabels(entry.Resource.Labels, entry.Labels),
		Raw:      raw,
	}
	record.Timestamp = parseEntryTimestamp(entry)
	record.Payload = resolveEntryPayload(entry)
	return record, nil
}

func parseEntryTimestamp(entry cloudEntry) time.Time {
	for _, candidate := range []string{entry.Timestamp, entry.ReceiveTimestamp} {
		if candidate == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, candidate); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// resolveEntryPayload decides the payload variant once, at the adapter
// boundary. A textPayload is flat text; a jsonPayload maps its well-known
// error fields into the structured variant.
func resolveEntryPayload(entry cloudEntry) model.Payload {
	if entry.TextPayload != "" {
		return model.FlatText(entry.TextPayload)
	}
	if entry.JSONPayload == nil {
		return model.FlatText("")
	}
	return model.Payload{
		Kind:       model.PayloadStructured,
		Message:    stringField(entry.JSONPayload, "message"),
		Traceback:  stringField(entry.JSONPayload, "traceback"),
		StackTrace: stringField(entry.JSONPayload, "stack_trace"),
		Exception:  stringField(entry.JSONPayload, "exception"),
	}
}

// stringField returns the field rendered as a string, or "" when absent.
func stringField(payload map[string]interface{}, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64, bool, int, int64:
		return fmt.Sprintf("%v", v)
	default:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
		return ""
	}
}

func mergeLabels(resource, extra map[string]string) map[string]string {
	if len(resource) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(resource)+len(extra))
	for k, v := range resource {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
