// Package extract derives the normalized error tuple from a
// provider-normalized log record. Extraction is best-effort: every helper
// degrades to a default on missing input and nothing here returns an error.
package extract

import (
	"strings"

	"github.com/vigilops/vigil/internal/model"
)

// Extract turns one LogRecord into the ErrorInfo tuple the signature
// engine consumes.
func Extract(record model.LogRecord) model.ErrorInfo {
	info := model.ErrorInfo{
		Severity:  record.Severity,
		Service:   record.Service,
		Revision:  record.Revision,
		Timestamp: record.Timestamp,
		Labels:    record.Labels,
		Raw:       record.Raw,
	}

	info.Message, info.Traceback = resolvePayload(record.Payload)
	info.ErrorType = classifyErrorType(info.Message, info.Traceback)
	info.FirstTracebackLine = firstNonBlankLine(info.Traceback)
	info.AffectedFunction = firstMatch(functionPatterns, info.Message+"\n"+info.Traceback)
	return info
}

// resolvePayload picks message and traceback from the payload variant.
// Flat text serves as both; structured payloads prefer an explicit message
// and the first non-empty of traceback, stack_trace, exception.
func resolvePayload(p model.Payload) (message, traceback string) {
	if p.Kind == model.PayloadFlatText {
		return p.Text, p.Text
	}

	message = p.Message
	for _, candidate := range []string{p.Traceback, p.StackTrace, p.Exception} {
		if candidate != "" {
			traceback = candidate
			break
		}
	}
	if message == "" {
		message = traceback
	}
	return message, traceback
}

func classifyErrorType(message, traceback string) string {
	if match := firstMatch(errorTypePatterns, message, traceback); match != "" {
		return match
	}
	return model.UnknownErrorType
}

func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
