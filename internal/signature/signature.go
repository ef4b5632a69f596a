// Package signature computes the stable content identity of an error.
// Two records describing the same logical defect must hash identically even
// when timestamps, request IDs, memory addresses, or line numbers differ.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Substitutions applied by Normalize, in order. Earlier patterns run first
// so identifier values are already collapsed before the broader ones match.
var (
	isoTimestampRegex   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	slashTimestampRegex = regexp.MustCompile(`\d{4}/\d{2}/\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?`)
	uuidRegex           = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	idPairRegex         = regexp.MustCompile(`(?i)\b(request_id|trace_id|correlation_id)\s*[=:]\s*[\w-]+`)
	objectAddrRegex     = regexp.MustCompile(`(?i)\bobject at 0x[0-9a-fA-F]+`)
	hexAddrRegex        = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	lineNumberRegex     = regexp.MustCompile(`(?i)\bline\s+\d+`)
)

// Normalize collapses volatile tokens in a traceback line to stable
// placeholders and trims surrounding whitespace. It is a total function:
// any string in, a string out, the empty string maps to itself.
func Normalize(line string) string {
	out := isoTimestampRegex.ReplaceAllString(line, "[TIMESTAMP]")
	out = slashTimestampRegex.ReplaceAllString(out, "[TIMESTAMP]")
	out = uuidRegex.ReplaceAllString(out, "[UUID]")
	out = idPairRegex.ReplaceAllString(out, "${1}=[ID]")
	out = objectAddrRegex.ReplaceAllString(out, "object at [ADDR]")
	out = hexAddrRegex.ReplaceAllString(out, "[ADDR]")
	out = lineNumberRegex.ReplaceAllString(out, "line [N]")
	return strings.TrimSpace(out)
}

// Sign derives the deterministic signature for an error tuple. Absent
// fields are passed as empty strings; the delimiter keeps field boundaries
// stable across the concatenation.
func Sign(severity, errorType, firstTracebackLine, affectedFunction string) string {
	key := severity + "|" + errorType + "|" + Normalize(firstTracebackLine) + "|" + affectedFunction
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
