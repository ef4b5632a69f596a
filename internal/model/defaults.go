package model

import "time"

// Shared defaults used by the poller and the CLI entrypoint.
const (
	DefaultPollInterval       = 5 * time.Minute
	DefaultStalenessThreshold = 10 * time.Minute
	DefaultCheckpointBuffer   = 30 * time.Second
	DefaultSeenRetentionDays  = 30 // days, 0 = keep forever
)
