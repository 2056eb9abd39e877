package main

import (
	"fmt"

	"github.com/flowtap/flowtap/backends/api"
	"github.com/flowtap/flowtap/backends/export"
	"github.com/flowtap/flowtap/backends/prometheus"
	"github.com/flowtap/flowtap/types"
)

func createBackends(c *Config) ([]types.Backend, error) {
	backends := []types.Backend{}

	if c.Backends != nil {
		if c.Backends.Export != nil {
			b, err := export.NewExportBackend(c.Backends.Export)
			if err != nil {
				return nil, fmt.Errorf("error creating the export backend: %w", err)
			}
			backends = append(backends, b)
		}

		if c.Backends.Prometheus != nil {
			b, err := prometheus.NewPrometheusBackend(c.Backends.Prometheus)
			if err != nil {
				return nil, fmt.Errorf("error creating the prometheus backend: %w", err)
			}
			backends = append(backends, b)
		}

		if c.Backends.Api != nil {
			b, err := api.NewApiBackend(c.Backends.Api)
			if err != nil {
				return nil, fmt.Errorf("error creating the api backend: %w", err)
			}
			backends = append(backends, b)
		}
	}

	return backends, nil
}
