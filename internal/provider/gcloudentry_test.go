package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

func TestParseCloudLoggingEntryFlatText(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`{
		"severity": "ERROR",
		"timestamp": "2024-03-01T10:00:00.123456Z",
		"textPayload": "KeyError: 'user_id'",
		"resource": {
			"type": "cloud_run_revision",
			"labels": {"service_name": "svc-a", "revision_name": "svc-a-00042"}
		}
	}`)

	record, err := ParseCloudLoggingEntry(raw)
	if err != nil {
		t.Fatalf("ParseCloudLoggingEntry: %v", err)
	}
	if record.Severity != "ERROR" {
		t.Errorf("severity = %q", record.Severity)
	}
	if record.Service != "svc-a" || record.Revision != "svc-a-00042" {
		t.Errorf("service/revision = %q/%q", record.Service, record.Revision)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)
	if !record.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", record.Timestamp, want)
	}
	if record.Payload.Kind != model.PayloadFlatText || record.Payload.Text != "KeyError: 'user_id'" {
		t.Errorf("payload = %+v, want flat text", record.Payload)
	}
	if len(record.Raw) == 0 {
		t.Error("raw envelope not preserved")
	}
}

func TestParseCloudLoggingEntryStructured(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`{
		"severity": "CRITICAL",
		"timestamp": "2024-03-01T10:00:00Z",
		"jsonPayload": {
			"message": "request failed",
			"stack_trace": "Traceback...\nValueError: nope",
			"extra": {"code": 500}
		},
		"resource": {"labels": {"service_name": "svc-b"}}
	}`)

	record, err := ParseCloudLoggingEntry(raw)
	if err != nil {
		t.Fatalf("ParseCloudLoggingEntry: %v", err)
	}
	if record.Severity != "FATAL" {
		t.Errorf("severity = %q, want FATAL (normalized CRITICAL)", record.Severity)
	}
	p := record.Payload
	if p.Kind != model.PayloadStructured {
		t.Fatalf("payload kind = %v, want structured", p.Kind)
	}
	if p.Message != "request failed" || p.StackTrace != "Traceback...\nValueError: nope" {
		t.Errorf("payload = %+v", p)
	}
	if p.Traceback != "" || p.Exception != "" {
		t.Errorf("absent fields should be empty: %+v", p)
	}
}

func TestParseCloudLoggingEntryDefaults(t *testing.T) {
	t.Parallel()
	record, err := ParseCloudLoggingEntry(json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ParseCloudLoggingEntry: %v", err)
	}
	if record.Service != "" || record.Revision != "" {
		t.Errorf("expected empty service/revision, got %q/%q", record.Service, record.Revision)
	}
	if !record.Timestamp.IsZero() {
		t.Errorf("timestamp = %v, want zero", record.Timestamp)
	}
	if record.Payload.Kind != model.PayloadFlatText || record.Payload.Text != "" {
		t.Errorf("payload = %+v, want empty flat text", record.Payload)
	}
}

func TestParseCloudLoggingEntryMalformed(t *testing.T) {
	t.Parallel()
	if _, err := ParseCloudLoggingEntry(json.RawMessage(`{broken`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseCloudLoggingOutput(t *testing.T) {
	t.Parallel()
	records, err := parseCloudLoggingOutput([]byte(`[
		{"severity": "ERROR", "textPayload": "boom", "resource": {"labels": {"service_name": "svc-a"}}},
		{"severity": "ERROR", "textPayload": "bang", "resource": {"labels": {"service_name": "svc-b"}}}
	]`))
	if err != nil {
		t.Fatalf("parseCloudLoggingOutput: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Service != "svc-a" || records[1].Service != "svc-b" {
		t.Errorf("order not preserved: %q, %q", records[0].Service, records[1].Service)
	}

	records, err = parseCloudLoggingOutput([]byte("  \n"))
	if err != nil || records != nil {
		t.Errorf("empty output = (%v, %v), want (nil, nil)", records, err)
	}
}
