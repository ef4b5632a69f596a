package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/vigilops/vigil/internal/httpserver"
	"github.com/vigilops/vigil/internal/poll"
)

// runOnce executes a single poll cycle and prints the cycle report.
// Meant for cron and systemd timers; a fetch failure is reported in the
// summary but only config and state-write problems exit non-zero.
func runOnce(cfg appConfig) error {
	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := deps.poller.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Print(poll.Summarize(result))

	if deps.launcher.Enabled() {
		deps.launcher.LaunchAll(result.LaunchServices)
	}
	return nil
}

// runServe runs poll cycles on a ticker with the investigator API.
func runServe(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(httpserver.Config{
			Addr:     cfg.APIAddr,
			StateDir: cfg.StateDir,
			Lock:     deps.poller.StateLock(),
			Archive:  archiveQuerier(deps.store),
			History:  historyReader(deps.journal),
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	cycle := func() {
		result, err := deps.poller.RunCycle(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("cycle failed: %v", err)
			return
		}
		log.Print(poll.Summarize(result))
		if deps.launcher.Enabled() {
			deps.launcher.LaunchAll(result.LaunchServices)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// First cycle immediately, then on the ticker.
		cycle()

		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cycle()
			case <-gctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Printf("serve: errgroup exited with error: %v", err)
	}

	cancel()
	signal.Stop(sigCh)
	return nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "vigil")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "vigil.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╦╦╔═╗╦╦
    ╚╗╔╝║║ ╦║║
     ╚╝ ╩╚═╝╩╩═╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Polling"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Provider       %s", check, cyan.Render(cfg.Provider)))
	lines = append(lines, fmt.Sprintf("    %s  Interval       %s", check, dim.Render(cfg.PollInterval.String())))

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  State          %s", check, dim.Render(shortenPath(cfg.StateDir))))
	if cfg.ArchiveEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", check, dim.Render(shortenPath(cfg.ArchivePath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Investigator"))
	lines = append(lines, "")
	if cfg.LaunchCommand != "" {
		lines = append(lines, fmt.Sprintf("    %s  Launch         %s", check, dim.Render(cfg.LaunchCommand)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Launch         %s", dot, dim.Render("report only")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
