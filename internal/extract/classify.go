package extract

import "regexp"

// classifierPattern binds one regexp to the capture group holding the
// classified value. Patterns are evaluated first-match-wins, in order, so
// adding a rule is a table edit rather than a control-flow change.
type classifierPattern struct {
	re    *regexp.Regexp
	group int
}

// errorTypePatterns classify the error type from message or traceback text.
var errorTypePatterns = []classifierPattern{
	{regexp.MustCompile(`\b([A-Za-z_][\w.]*Error)\s*:`), 1},
	{regexp.MustCompile(`\b([A-Za-z_][\w.]*Exception)\s*:`), 1},
	{regexp.MustCompile(`\b([A-Za-z_][\w.]*Failure)\s*:`), 1},
	{regexp.MustCompile(`\braise\s+([A-Za-z_]\w*)`), 1},
	{regexp.MustCompile(`\bthrow\s+new\s+([A-Za-z_]\w*)`), 1},
}

// functionPatterns locate the affected endpoint or function. The
// traceback frame form is a last resort: explicit endpoint and
// declaration markers win over frame names.
var functionPatterns = []classifierPattern{
	{regexp.MustCompile(`(/api/[\w\-./{}]+)`), 1},
	{regexp.MustCompile(`(?i)\bendpoint\s*[=:]\s*([\w\-./]+)`), 1},
	{regexp.MustCompile(`\bdef\s+([A-Za-z_]\w*)`), 1},
	{regexp.MustCompile(`\bfunction\s+([A-Za-z_]\w*)`), 1},
	{regexp.MustCompile(`\bline\s+\d+,\s+in\s+([A-Za-z_]\w*)`), 1},
}

func firstMatch(patterns []classifierPattern, texts ...string) string {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, p := range patterns {
			if m := p.re.FindStringSubmatch(text); m != nil {
				return m[p.group]
			}
		}
	}
	return ""
}
