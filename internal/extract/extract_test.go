package extract

import (
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

func TestExtractFlatText(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	record := model.LogRecord{
		Severity:  "ERROR",
		Timestamp: ts,
		Service:   "svc-a",
		Revision:  "svc-a-00042",
		Payload:   model.FlatText("KeyError: 'user_id'\n  File app.py, line 55 in handler"),
	}

	info := Extract(record)
	if info.Severity != "ERROR" || info.Service != "svc-a" || info.Revision != "svc-a-00042" {
		t.Errorf("verbatim fields not copied: %+v", info)
	}
	if !info.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", info.Timestamp, ts)
	}
	if info.Message != info.Traceback {
		t.Error("flat text should serve as both message and traceback")
	}
	if info.ErrorType != "KeyError" {
		t.Errorf("error type = %q, want KeyError", info.ErrorType)
	}
	if info.FirstTracebackLine != "KeyError: 'user_id'" {
		t.Errorf("first traceback line = %q", info.FirstTracebackLine)
	}
}

func TestExtractStructuredPayload(t *testing.T) {
	t.Parallel()
	record := model.LogRecord{
		Severity: "ERROR",
		Service:  "svc-b",
		Payload: model.Payload{
			Kind:       model.PayloadStructured,
			Message:    "request failed",
			StackTrace: "\n  Traceback (most recent call last):\n  ValueError: bad input",
		},
	}

	info := Extract(record)
	if info.Message != "request failed" {
		t.Errorf("message = %q, want explicit message field", info.Message)
	}
	if info.Traceback != "\n  Traceback (most recent call last):\n  ValueError: bad input" {
		t.Errorf("traceback = %q, want stack_trace fallback", info.Traceback)
	}
	if info.FirstTracebackLine != "  Traceback (most recent call last):" {
		t.Errorf("first traceback line = %q", info.FirstTracebackLine)
	}
	if info.ErrorType != "ValueError" {
		t.Errorf("error type = %q, want ValueError (found in traceback)", info.ErrorType)
	}
}

func TestExtractTracebackPreferenceOrder(t *testing.T) {
	t.Parallel()
	record := model.LogRecord{
		Payload: model.Payload{
			Kind:       model.PayloadStructured,
			Traceback:  "from traceback",
			StackTrace: "from stack_trace",
			Exception:  "from exception",
		},
	}
	if got := Extract(record).Traceback; got != "from traceback" {
		t.Errorf("traceback = %q, want traceback field first", got)
	}

	record.Payload.Traceback = ""
	if got := Extract(record).Traceback; got != "from stack_trace" {
		t.Errorf("traceback = %q, want stack_trace second", got)
	}

	record.Payload.StackTrace = ""
	if got := Extract(record).Traceback; got != "from exception" {
		t.Errorf("traceback = %q, want exception third", got)
	}
}

func TestClassifyErrorType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		message   string
		traceback string
		want      string
	}{
		{"error suffix", "ValueError: invalid literal", "", "ValueError"},
		{"exception suffix", "java.lang.NullPointerException: oops", "", "java.lang.NullPointerException"},
		{"failure suffix", "AssertionFailure: expected 1", "", "AssertionFailure"},
		{"raise statement", "about to raise TimeoutCancelled here", "", "TimeoutCancelled"},
		{"throw new", "caught: throw new DatabaseGone", "", "DatabaseGone"},
		{"message wins over traceback", "KeyError: 'x'", "ValueError: y", "KeyError"},
		{"traceback fallback", "something went wrong", "IndexError: out of range", "IndexError"},
		{"no match", "all fine", "nothing here", model.UnknownErrorType},
		{"empty", "", "", model.UnknownErrorType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyErrorType(tt.message, tt.traceback); got != tt.want {
				t.Errorf("classifyErrorType(%q, %q) = %q, want %q", tt.message, tt.traceback, got, tt.want)
			}
		})
	}
}

func TestAffectedFunction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"api path", "POST /api/v1/users/{id} returned 500", "/api/v1/users/{id}"},
		{"endpoint pair", "failed endpoint=billing.charge retry", "billing.charge"},
		{"endpoint colon", "Endpoint: checkout/submit", "checkout/submit"},
		{"traceback frame", `File "app.py", line 55, in handle_request`, "handle_request"},
		{"def declaration", "  File app.py in def process_order", "process_order"},
		{"function declaration", "at function renderCart (cart.js)", "renderCart"},
		{"api path wins", "endpoint=x def y /api/orders", "/api/orders"},
		{"declaration beats frame", "line 55, in handler\ndef validate", "validate"},
		{"none", "no location info", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstMatch(functionPatterns, tt.text); got != tt.want {
				t.Errorf("firstMatch = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractNeverPanicsOnEmptyRecord(t *testing.T) {
	t.Parallel()
	info := Extract(model.LogRecord{})
	if info.ErrorType != model.UnknownErrorType {
		t.Errorf("error type = %q, want Unknown sentinel", info.ErrorType)
	}
	if info.FirstTracebackLine != "" || info.AffectedFunction != "" {
		t.Errorf("expected empty derived fields, got %+v", info)
	}
}
