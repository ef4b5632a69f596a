package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vigilops/vigil/internal/model"
)

const (
	defaultPollInterval       = model.DefaultPollInterval
	defaultStalenessThreshold = model.DefaultStalenessThreshold
	defaultCheckpointBuffer   = model.DefaultCheckpointBuffer
	defaultSeenRetentionDays  = model.DefaultSeenRetentionDays
	defaultProvider           = "gcloud"
	defaultMinSeverity        = "ERROR"
	defaultFetchTimeout       = 60 * time.Second
	defaultAPIAddr            = "127.0.0.1:8321"
	defaultArchiveRetention   = 90 // days, 0 = keep forever
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	PollInterval         time.Duration `mapstructure:"poll-interval"`
	StalenessThreshold   time.Duration `mapstructure:"staleness-threshold"`
	CheckpointBuffer     time.Duration `mapstructure:"checkpoint-buffer"`
	SeenRetentionDays    int           `mapstructure:"seen-retention-days"`
	StateDir             string        `mapstructure:"state-dir"`
	ServicesFile         string        `mapstructure:"services-file"`
	Provider             string        `mapstructure:"provider"`
	GcloudProject        string        `mapstructure:"gcloud-project"`
	GcloudBin            string        `mapstructure:"gcloud-bin"`
	MinSeverity          string        `mapstructure:"min-severity"`
	FetchTimeout         time.Duration `mapstructure:"fetch-timeout"`
	ReplayFile           string        `mapstructure:"replay-file"`
	OTLPAddr             string        `mapstructure:"otlp-addr"`
	OTLPBuffer           int           `mapstructure:"otlp-buffer"`
	APIEnabled           bool          `mapstructure:"api-enabled"`
	APIAddr              string        `mapstructure:"api-addr"`
	ArchiveEnabled       bool          `mapstructure:"archive-enabled"`
	ArchivePath          string        `mapstructure:"archive-path"`
	ArchiveRetentionDays int           `mapstructure:"archive-retention-days"`
	HistoryEnabled       bool          `mapstructure:"history-enabled"`
	LaunchCommand        string        `mapstructure:"launch-command"`
	ExtractWorkers       int           `mapstructure:"extract-workers"`
	ConfigPath           string        `mapstructure:"-"` // not from config file
}

// servicesFile is the on-disk schema of the service registry.
type servicesFile struct {
	Services map[string]model.KnownService `yaml:"services"`
}

// loadServices reads the known-service registry. Records from services
// not listed here are ignored by poll cycles.
func loadServices(path string) (map[string]model.KnownService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading services file: %w", err)
	}

	var parsed servicesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing services file %s: %w", path, err)
	}
	if len(parsed.Services) == 0 {
		return nil, fmt.Errorf("services file %s lists no services", path)
	}
	for name, svc := range parsed.Services {
		if svc.Workspace == "" {
			return nil, fmt.Errorf("service %q has no workspace", name)
		}
	}
	return parsed.Services, nil
}
