package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var runOnceMode bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/vigil/config.yml)")
	flag.BoolVar(&runOnceMode, "once", false, "run one poll cycle and exit")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Vigil - Error Triage Service\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if runOnceMode {
		if err := runOnce(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServe(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultStateDir := filepath.Join(home, ".local", "share", "vigil")

	v := viper.New()
	v.SetEnvPrefix("VIGIL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("poll-interval", defaultPollInterval)
	v.SetDefault("staleness-threshold", defaultStalenessThreshold)
	v.SetDefault("checkpoint-buffer", defaultCheckpointBuffer)
	v.SetDefault("seen-retention-days", defaultSeenRetentionDays)
	v.SetDefault("state-dir", defaultStateDir)
	v.SetDefault("services-file", filepath.Join(home, ".config", "vigil", "services.yml"))
	v.SetDefault("provider", defaultProvider)
	v.SetDefault("min-severity", defaultMinSeverity)
	v.SetDefault("fetch-timeout", defaultFetchTimeout)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("archive-enabled", false)
	v.SetDefault("archive-path", filepath.Join(defaultStateDir, "archive.duckdb"))
	v.SetDefault("archive-retention-days", defaultArchiveRetention)
	v.SetDefault("history-enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "vigil", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("invalid poll-interval: %v", cfg.PollInterval)
	}
	if cfg.StalenessThreshold <= 0 {
		return cfg, fmt.Errorf("invalid staleness-threshold: %v", cfg.StalenessThreshold)
	}
	if cfg.CheckpointBuffer < 0 {
		return cfg, fmt.Errorf("invalid checkpoint-buffer: %v", cfg.CheckpointBuffer)
	}
	if cfg.SeenRetentionDays < 0 {
		return cfg, fmt.Errorf("invalid seen-retention-days: %d", cfg.SeenRetentionDays)
	}
	switch cfg.Provider {
	case "gcloud", "file", "otlp":
	default:
		return cfg, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}

	// Expand ~ in paths.
	for _, p := range []*string{&cfg.StateDir, &cfg.ServicesFile, &cfg.ArchivePath, &cfg.ReplayFile} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	return cfg, nil
}
