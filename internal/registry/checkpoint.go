package registry

import (
	"time"

	"github.com/vigilops/vigil/internal/model"
)

// LoadCheckpoint reads the poll checkpoint at path. The second return is
// false on first run (no checkpoint yet) or when the file is unreadable.
func LoadCheckpoint(path string) (model.Checkpoint, bool) {
	cp := model.Checkpoint{}
	loadJSON(path, &cp)
	return cp, !cp.LastPollTime.IsZero()
}

// SaveCheckpoint persists the checkpoint at path.
func SaveCheckpoint(path string, cp model.Checkpoint) error {
	return saveJSON(path, cp)
}

// NextWindow computes the query window ending at now. Normally the window
// spans one polling interval. When the last checkpoint is older than the
// interval plus buffer (the host slept, or cycles were skipped), the start
// backs up to the checkpoint minus the buffer so no log window is lost.
func NextWindow(cp model.Checkpoint, haveCheckpoint bool, now time.Time, interval, buffer time.Duration) model.Window {
	start := now.Add(-interval)
	if haveCheckpoint {
		gap := now.Sub(cp.LastPollTime)
		if gap > interval+buffer {
			start = cp.LastPollTime.Add(-buffer)
		}
	}
	return model.Window{Start: start, End: now}
}
