// Package provider adapts external log sources to the canonical LogRecord
// shape the triage core consumes. A provider owns its query syntax and
// authentication; the core only sees normalized records for a window.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

// Provider fetches the log records for one poll window.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, window model.Window) ([]model.LogRecord, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Kind string // "gcloud", "file", "otlp"

	// gcloud
	GcloudProject  string
	GcloudBin      string
	GcloudMinLevel string
	FetchTimeout   time.Duration

	// file
	ReplayPath string

	// otlp
	OTLPAddr   string
	OTLPBuffer int
}

// New builds the configured provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case "gcloud":
		return NewGcloudProvider(GcloudConfig{
			Project:  cfg.GcloudProject,
			Bin:      cfg.GcloudBin,
			MinLevel: cfg.GcloudMinLevel,
			Timeout:  cfg.FetchTimeout,
		})
	case "file":
		return NewReplayProvider(cfg.ReplayPath)
	case "otlp":
		return NewOTLPProvider(OTLPConfig{
			Addr:       cfg.OTLPAddr,
			BufferSize: cfg.OTLPBuffer,
		})
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", cfg.Kind)
	}
}
