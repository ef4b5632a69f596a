// Package launch hands queued errors to the external investigator
// command. Claiming happens before exec so a crashed investigator
// leaves its errors visibly in_progress rather than silently pending.
package launch

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vigilops/vigil/internal/model"
	"github.com/vigilops/vigil/internal/registry"
)

// Config holds launcher parameters.
type Config struct {
	// Command is the investigator executable. Empty disables launching;
	// cycles then only report which services need attention.
	Command       string
	StateDir      string
	KnownServices map[string]model.KnownService
	Lock          sync.Locker // optional, serializes registry writes
}

// Launcher claims pending errors and spawns the investigator command.
type Launcher struct {
	cfg Config
}

// New validates the command and creates a launcher.
func New(cfg Config) (*Launcher, error) {
	if cfg.Command != "" {
		if _, err := exec.LookPath(cfg.Command); err != nil {
			return nil, fmt.Errorf("launch: command %q not found in PATH", cfg.Command)
		}
	}
	return &Launcher{cfg: cfg}, nil
}

// Enabled reports whether a command is configured.
func (l *Launcher) Enabled() bool {
	return l.cfg.Command != ""
}

// LaunchAll claims and launches each listed service. Failures are
// logged per service; one broken workspace must not block the rest.
func (l *Launcher) LaunchAll(services []string) {
	for _, service := range services {
		if err := l.Launch(service); err != nil {
			log.Printf("launch: %s: %v", service, err)
		}
	}
}

// Launch claims the service's pending errors and starts the
// investigator with the service name, its workspace and the queue file
// path. The process is deliberately not bound to the cycle's lifetime:
// investigations keep running after the cycle (or a -once invocation)
// finishes. Its exit is logged from a reaper goroutine.
func (l *Launcher) Launch(service string) error {
	if !l.Enabled() {
		return nil
	}

	known, ok := l.cfg.KnownServices[service]
	if !ok {
		return fmt.Errorf("unknown service")
	}

	queueDir := filepath.Join(l.cfg.StateDir, "queues")
	queues := registry.NewQueueWriter(queueDir)

	if l.cfg.Lock != nil {
		l.cfg.Lock.Lock()
	}
	queue, exists, err := queues.Load(service)
	var claimed int
	if err == nil && exists {
		claimed, err = l.claim(queue)
	}
	if l.cfg.Lock != nil {
		l.cfg.Lock.Unlock()
	}
	if err != nil {
		return err
	}
	if !exists || len(queue.Errors) == 0 {
		return nil
	}
	if claimed > 0 {
		log.Printf("launch: %s: claimed %d errors", service, claimed)
	}

	queuePath := queues.Path(service)
	cmd := exec.Command(l.cfg.Command, service, known.Workspace, queuePath)
	cmd.Env = append(os.Environ(),
		"VIGIL_SERVICE="+service,
		"VIGIL_WORKSPACE="+known.Workspace,
		"VIGIL_QUEUE="+queuePath,
	)
	if strings.TrimSpace(known.Workflow) != "" {
		cmd.Env = append(cmd.Env, "VIGIL_WORKFLOW="+known.Workflow)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start investigator: %w", err)
	}
	log.Printf("launch: %s: started investigator pid=%d", service, cmd.Process.Pid)

	// Investigations run long; reap the process without blocking the cycle.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("launch: %s: investigator exited: %v", service, err)
		}
	}()
	return nil
}

// claim flips every queued signature to in_progress. Signatures missing
// from the status registry are initialized first so a hand-edited queue
// file still claims cleanly.
func (l *Launcher) claim(queue model.PendingQueue) (int, error) {
	tracker := registry.OpenStatusTracker(filepath.Join(l.cfg.StateDir, "status.json"))
	now := time.Now().UTC()

	claimed := 0
	for _, entry := range queue.Errors {
		if _, ok := tracker.Get(entry.Signature); !ok {
			tracker.Initialize(entry.Signature, queue.Service, entry.ErrorType, now)
		}
		if err := tracker.MarkInProgress(entry.Signature, now); err != nil {
			return claimed, err
		}
		claimed++
	}
	if claimed == 0 {
		return 0, nil
	}
	return claimed, tracker.Save()
}
