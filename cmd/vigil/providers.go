package main

import (
	"fmt"
	"path/filepath"

	"github.com/vigilops/vigil/internal/archive"
	"github.com/vigilops/vigil/internal/history"
	"github.com/vigilops/vigil/internal/httpserver"
	"github.com/vigilops/vigil/internal/launch"
	"github.com/vigilops/vigil/internal/poll"
	"github.com/vigilops/vigil/internal/provider"
)

// runtimeDeps is everything a cycle needs, built once from config.
type runtimeDeps struct {
	provider provider.Provider
	store    *archive.Store
	journal  *history.Journal
	poller   *poll.Poller
	launcher *launch.Launcher
}

func buildDeps(cfg appConfig) (*runtimeDeps, func(), error) {
	services, err := loadServices(cfg.ServicesFile)
	if err != nil {
		return nil, nil, err
	}

	prov, err := provider.New(provider.Config{
		Kind:           cfg.Provider,
		GcloudProject:  cfg.GcloudProject,
		GcloudBin:      cfg.GcloudBin,
		GcloudMinLevel: cfg.MinSeverity,
		FetchTimeout:   cfg.FetchTimeout,
		ReplayPath:     cfg.ReplayFile,
		OTLPAddr:       cfg.OTLPAddr,
		OTLPBuffer:     cfg.OTLPBuffer,
	})
	if err != nil {
		return nil, nil, err
	}

	deps := &runtimeDeps{provider: prov}
	cleanup := func() {
		if stopper, ok := deps.provider.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		if deps.journal != nil {
			_ = deps.journal.Close()
		}
		if deps.store != nil {
			_ = deps.store.Close()
		}
	}

	pollCfg := poll.Config{
		StateDir:           cfg.StateDir,
		KnownServices:      services,
		Interval:           cfg.PollInterval,
		StalenessThreshold: cfg.StalenessThreshold,
		CheckpointBuffer:   cfg.CheckpointBuffer,
		SeenRetentionDays:  cfg.SeenRetentionDays,
		ExtractWorkers:     cfg.ExtractWorkers,
	}

	if cfg.ArchiveEnabled {
		deps.store, err = archive.NewStore(cfg.ArchivePath, archive.Config{
			RetentionDays: cfg.ArchiveRetentionDays,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		pollCfg.Archiver = deps.store
	}

	if cfg.HistoryEnabled {
		deps.journal, err = history.Open(filepath.Join(cfg.StateDir, "history.jsonl"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("opening cycle history: %w", err)
		}
		pollCfg.History = deps.journal
	}

	deps.poller = poll.New(pollCfg, prov)

	deps.launcher, err = launch.New(launch.Config{
		Command:       cfg.LaunchCommand,
		StateDir:      cfg.StateDir,
		KnownServices: services,
		Lock:          deps.poller.StateLock(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return deps, cleanup, nil
}

// archiveQuerier converts a possibly-nil store to the API's interface.
// A typed nil inside a non-nil interface would defeat the server's
// disabled-endpoint check.
func archiveQuerier(store *archive.Store) httpserver.ArchiveQuerier {
	if store == nil {
		return nil
	}
	return store
}

func historyReader(journal *history.Journal) httpserver.HistoryReader {
	if journal == nil {
		return nil
	}
	return journal
}
