package main

import (
	"fmt"
	"log/slog"

	"github.com/flowtap/flowtap/types"
)

func initProbes(probes []types.Probe) error {
	for _, probe := range probes {
		if err := probe.Init(); err != nil {
			return fmt.Errorf("error setting up probe %s: %w", probe, err)
		}
	}
	return nil
}

func initBackends(backends []types.Backend) error {
	for _, backend := range backends {
		if err := backend.Init(); err != nil {
			return fmt.Errorf("error setting up backend %s: %w", backend, err)
		}
	}
	return nil
}

func cleanupProbes(probes []types.Probe) {
	for _, probe := range probes {
		if err := probe.Cleanup(); err != nil {
			slog.Error("error cleaning up probe", "probe", probe, "err", err)
		}
	}
}

func cleanupBackends(backends []types.Backend) {
	for _, backend := range backends {
		if err := backend.Cleanup(); err != nil {
			slog.Error("error cleaning up backend", "backend", backend, "err", err)
		}
	}
}
