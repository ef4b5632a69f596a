package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vigilops/vigil/internal/model"
)

const defaultGcloudTimeout = 60 * time.Second

// GcloudConfig holds parameters for the gcloud CLI provider.
type GcloudConfig struct {
	Project  string
	Bin      string        // gcloud binary, defaults to "gcloud" on PATH
	MinLevel string        // minimum severity in the server-side filter
	Timeout  time.Duration // per-fetch deadline
}

// GcloudProvider fetches Cloud Logging entries by driving the gcloud CLI,
// the same way backups drive the aws CLI: a subprocess with a context
// deadline rather than a native SDK.
type GcloudProvider struct {
	bin      string
	project  string
	minLevel string
	timeout  time.Duration
}

// NewGcloudProvider validates the configuration and locates the CLI.
func NewGcloudProvider(cfg GcloudConfig) (*GcloudProvider, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, fmt.Errorf("provider: gcloud project is required")
	}
	bin := cfg.Bin
	if bin == "" {
		bin = "gcloud"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("provider: gcloud cli not found in PATH: %w", err)
	}
	minLevel := cfg.MinLevel
	if minLevel == "" {
		minLevel = "ERROR"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGcloudTimeout
	}
	return &GcloudProvider{
		bin:      bin,
		project:  cfg.Project,
		minLevel: minLevel,
		timeout:  timeout,
	}, nil
}

func (p *GcloudProvider) Name() string { return "gcloud" }

// Fetch runs `gcloud logging read` for the window and parses the JSON
// entry array it prints.
func (p *GcloudProvider) Fetch(ctx context.Context, window model.Window) ([]model.LogRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	filter := fmt.Sprintf(
		`severity>=%s AND timestamp>=%q AND timestamp<%q`,
		p.minLevel,
		window.Start.UTC().Format(time.RFC3339Nano),
		window.End.UTC().Format(time.RFC3339Nano),
	)

	args := []string{
		"logging", "read", filter,
		"--project", p.project,
		"--format", "json",
		"--order", "asc",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("provider: gcloud logging read: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return parseCloudLoggingOutput(stdout.Bytes())
}

func parseCloudLoggingOutput(data []byte) ([]model.LogRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(data, &rawEntries); err != nil {
		return nil, fmt.Errorf("provider: parse gcloud output: %w", err)
	}

	records := make([]model.LogRecord, 0, len(rawEntries))
	for _, raw := range rawEntries {
		record, err := ParseCloudLoggingEntry(raw)
		if err != nil {
			// One malformed entry must not drop the batch.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
