package prometheus

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowtap/flowtap/types"
)

var logger *slog.Logger

type PrometheusBackend struct {
	Config

	m      *metrics
	server *http.Server
}

func (b *PrometheusBackend) String() string {
	return "Prometheus"
}

func NewPrometheusBackend(c *Config) (*PrometheusBackend, error) {
	if c.Log {
		logger = slog.Default().With("t", "prometheus")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the prometheus backend")

	b := PrometheusBackend{Config: *c}

	// Create a non-global registry.
	reg := prometheus.NewRegistry()

	b.m = newMetrics()
	if err := b.m.register(reg); err != nil {
		return nil, fmt.Errorf("error registering the metrics: %v", err)
	}

	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	b.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", b.BindAddress, b.Port),
		Handler: handler,
	}

	return &b, nil
}

func (b *PrometheusBackend) Init() error {
	return nil
}

func (b *PrometheusBackend) Run(done <-chan struct{}, inChan <-chan types.Event) {
	logger.Debug("running the prometheus backend")

	go func() {
		if err := b.server.ListenAndServe(); err != nil {
			logger.Info("stopped listening", "err", err)
		}
	}()

	for {
		select {
		case ev, ok := <-inChan:
			if !ok {
				logger.Warn("somebody closed the input channel!")
				return
			}
			logger.Debug("got an event", "event", ev)

			b.m.update(ev)
		case <-done:
			logger.Debug("cleanly exiting the prometheus backend")
			return
		}
	}
}

func (b *PrometheusBackend) Cleanup() error {
	logger.Debug("cleaning up the prometheus backend")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return b.server.Shutdown(ctx)
}
