package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowtap/flowtap/types"
)

// EVENT_BUFFER_SIZE decouples the probes from slow backends: probes
// never block on a backend as long as the buffers have room.
const EVENT_BUFFER_SIZE int = 256

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the flowtap daemon.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := ReadConf(confFilePathFlag)
		if err != nil {
			slog.Error("couldn't read the configuration", "err", err)
			os.Exit(1)
		}
		slog.Debug("parsed configuration", "conf", conf)

		if err := run(conf); err != nil {
			slog.Error("error running the daemon", "err", err)
			os.Exit(1)
		}
	},
}

func run(conf *Config) error {
	probes, err := createProbes(conf)
	if err != nil {
		return err
	}
	if len(probes) == 0 {
		return fmt.Errorf("no probes configured, nothing to do")
	}

	backends, err := createBackends(conf)
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		return fmt.Errorf("no backends configured, nothing to do")
	}

	if err := initProbes(probes); err != nil {
		cleanupProbes(probes)
		return err
	}
	if err := initBackends(backends); err != nil {
		cleanupProbes(probes)
		cleanupBackends(backends)
		return err
	}

	if err := writePidFile(conf.PidPath); err != nil {
		slog.Warn("couldn't write the PID file", "path", conf.PidPath, "err", err)
	}

	doneChan := make(chan struct{})
	eventChan := make(chan types.Event, EVENT_BUFFER_SIZE)

	for _, probe := range probes {
		slog.Info("starting probe", "probe", probe)
		go probe.Run(doneChan, eventChan)
	}

	backendChans := make([]chan types.Event, 0, len(backends))
	for _, backend := range backends {
		slog.Info("starting backend", "backend", backend)
		ch := make(chan types.Event, EVENT_BUFFER_SIZE)
		backendChans = append(backendChans, ch)
		go backend.Run(doneChan, ch)
	}

	go broadcast(doneChan, eventChan, backendChans)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("cleanly exiting the daemon")
	close(doneChan)

	cleanupProbes(probes)
	cleanupBackends(backends)
	removePidFile(conf.PidPath)

	return nil
}

// broadcast fans every probe event out to each backend. A backend whose
// buffer is full loses the event: they are observations, not commands,
// so dropping beats stalling every other consumer.
func broadcast(done <-chan struct{}, in <-chan types.Event, outs []chan types.Event) {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				slog.Warn("somebody closed the event channel!")
				return
			}
			for _, out := range outs {
				select {
				case out <- ev:
				default:
					slog.Warn("dropping event on a full backend buffer", "event", ev)
				}
			}
		case <-done:
			return
		}
	}
}

func writePidFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

func removePidFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("couldn't remove the PID file", "path", path, "err", err)
	}
}
