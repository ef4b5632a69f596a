package poll

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vigilops/vigil/internal/model"
)

// Summarize renders the per-cycle human-readable report: totals, the
// per-service breakdown with error-type counts, and the launch decision.
func Summarize(result model.CycleResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "cycle window [%s, %s): %d records",
		result.WindowStart.Format("15:04:05"),
		result.WindowEnd.Format("15:04:05"),
		result.RecordsFetched,
	)
	if result.FetchFailed {
		b.WriteString(" (fetch failed, stale scan only)")
	}
	fmt.Fprintf(&b, ", %d new distinct errors\n", result.TotalNewErrors())

	services := make([]string, 0, len(result.NewByService))
	for service := range result.NewByService {
		services = append(services, service)
	}
	sort.Strings(services)
	for _, service := range services {
		summary := result.NewByService[service]
		fmt.Fprintf(&b, "  %s: %d new (%s)\n", service, summary.NewErrors, errorTypeSummary(summary.ErrorTypes))
	}

	if len(result.StaleServices) > 0 {
		fmt.Fprintf(&b, "  stale queues: %s\n", strings.Join(result.StaleServices, ", "))
	}
	if len(result.LaunchServices) > 0 {
		fmt.Fprintf(&b, "  launch investigation: %s\n", strings.Join(result.LaunchServices, ", "))
	} else {
		b.WriteString("  nothing to launch\n")
	}
	return b.String()
}

func errorTypeSummary(errorTypes map[string]int) string {
	types := make([]string, 0, len(errorTypes))
	for errorType := range errorTypes {
		types = append(types, errorType)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, errorType := range types {
		parts = append(parts, fmt.Sprintf("%s x%d", errorType, errorTypes[errorType]))
	}
	return strings.Join(parts, ", ")
}
