// Package api exposes a small read-only HTTP surface for poking at the
// running daemon: what routes exist, how many events each origin has
// produced and the latest events themselves.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowtap/flowtap/types"
)

const (
	JSON_PRETTY_INDENT string = "    "
)

type rootResponse struct {
	ApiRoutes []*echo.Route
}

type statusResponse struct {
	Events map[string]uint64 `json:"events"`
}

type ApiBackend struct {
	Config

	server  *echo.Echo
	history *history
}

func NewApiBackend(c *Config) (*ApiBackend, error) {
	b := ApiBackend{Config: *c}
	return &b, nil
}

func (b *ApiBackend) String() string {
	return "api"
}

func (b *ApiBackend) Init() error {
	slog.Debug("initialising the api backend")

	b.history = newHistory(b.HistorySize)
	b.server = echo.New()

	// Configure the methods for each path
	b.server.GET("/", b.handleRoot)
	b.server.GET("/status", b.handleStatus)
	b.server.GET("/events", b.handleEvents)

	// Prevent the banner from showing up in the log
	b.server.HideBanner = true
	b.server.HidePort = true

	return nil
}

func (b *ApiBackend) Run(done <-chan struct{}, inChan <-chan types.Event) {
	slog.Debug("running the api backend")

	go func() {
		if err := b.server.Start(fmt.Sprintf("%s:%d", b.BindAddress, b.BindPort)); err != http.ErrServerClosed {
			slog.Error("couldn't start the API server", "err", err)
		}
	}()

	for {
		select {
		case ev, ok := <-inChan:
			if !ok {
				slog.Warn("somebody closed the input channel!")
				return
			}
			b.history.push(ev)
		case <-done:
			slog.Debug("cleanly exiting the api backend")
			return
		}
	}
}

func (b *ApiBackend) Cleanup() error {
	slog.Debug("cleaning up the api backend")
	if err := b.server.Shutdown(context.TODO()); err != nil {
		return fmt.Errorf("error shutting down the API server: %w", err)
	}
	return nil
}

func (b *ApiBackend) handleRoot(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, &rootResponse{
		ApiRoutes: b.server.Routes(),
	}, JSON_PRETTY_INDENT)
}

func (b *ApiBackend) handleStatus(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, &statusResponse{
		Events: b.history.counters(),
	}, JSON_PRETTY_INDENT)
}

func (b *ApiBackend) handleEvents(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, b.history.latest(), JSON_PRETTY_INDENT)
}
