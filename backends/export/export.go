// Package export ships events off the box as JSON records, either to a
// UDP collector, to a file, or both.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/flowtap/flowtap/internal/stun"
	"github.com/flowtap/flowtap/types"
)

type ExportBackend struct {
	Config

	collectorConn net.Conn
	file          *os.File

	exporter exporterInfo
}

func NewExportBackend(c *Config) (*ExportBackend, error) {
	b := ExportBackend{Config: *c}
	return &b, nil
}

func (b *ExportBackend) String() string {
	return "export"
}

func (b *ExportBackend) Init() error {
	slog.Debug("initialising the export backend")

	hostname, err := os.Hostname()
	if err != nil {
		slog.Warn("couldn't get the hostname", "err", err)
	}
	b.exporter.Hostname = hostname

	if b.AddPublicAddresses {
		stunConf := stun.Config{}
		if b.Stun != nil {
			stunConf = *b.Stun
		}

		pubIPs, err := stun.GetPublicAddresses(stunConf)
		if err != nil {
			slog.Warn("couldn't resolve public addresses, exporting without them", "err", err)
		}
		for _, pub := range pubIPs {
			b.exporter.Addresses = append(b.exporter.Addresses, pub.String())
		}
	}

	if b.SendToCollector {
		conn, err := net.Dial("udp", parseCollectorAddress(b.CollectorAddress, b.CollectorPort))
		if err != nil {
			return fmt.Errorf("couldn't initialize UDP socket: %w", err)
		}
		b.collectorConn = conn
	}

	switch b.FilePath {
	case "":
	case "-":
		b.file = os.Stdout
	default:
		f, err := os.OpenFile(b.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("couldn't open the output file: %w", err)
		}
		b.file = f
	}

	return nil
}

func (b *ExportBackend) Run(done <-chan struct{}, inChan <-chan types.Event) {
	slog.Debug("running the export backend")

	for {
		select {
		case ev, ok := <-inChan:
			if !ok {
				slog.Warn("somebody closed the input channel!")
				return
			}
			slog.Debug("got an event", "event", ev)

			payload, err := b.buildRecord(ev)
			if err != nil {
				slog.Error("error building the record", "err", err)
				continue
			}

			if err := b.sendRecord(payload); err != nil {
				slog.Error("error sending the record", "err", err)
			}
		case <-done:
			slog.Debug("cleanly exiting the export backend")
			return
		}
	}
}

func (b *ExportBackend) Cleanup() error {
	slog.Debug("cleaning up the export backend")

	var errs []error
	if b.collectorConn != nil {
		if err := b.collectorConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing UDP socket: %w", err))
		}
	}
	if b.file != nil && b.file != os.Stdout {
		if err := b.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing the output file: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *ExportBackend) sendRecord(payload []byte) error {
	sendErrors := []error{}

	if b.file != nil {
		if _, err := b.file.Write(append(payload, '\n')); err != nil {
			sendErrors = append(sendErrors, fmt.Errorf("error writing the record to the file: %w", err))
		}
	}

	if b.SendToCollector {
		if err := b.sendToCollector(payload); err != nil {
			sendErrors = append(sendErrors, err)
		}
	}

	// errors.Join will return nil if all the errors are nil!
	return errors.Join(sendErrors...)
}

func (b *ExportBackend) sendToCollector(payload []byte) error {
	slog.Debug("sending record to the collector")

	if _, err := b.collectorConn.Write(payload); err != nil {
		// Be sure to check udp(7)
		if errors.Is(err, syscall.ECONNREFUSED) {
			slog.Warn("got ECONNREFUSED when sending, retrying once...")
			if _, err := b.collectorConn.Write(payload); err != nil {
				return fmt.Errorf("error sending the record to the collector: %w", err)
			}
		} else {
			return fmt.Errorf("error sending the record to the collector: %w", err)
		}
	}

	return nil
}

// parseCollectorAddress handles the specified collector address and
// provides an address suitable for net.Dial.
func parseCollectorAddress(rawAddress string, port int) string {
	// This address format is suitable both for hostnames and raw IPv4 addresses.
	addressFmt := "%s:%d"

	// If we got an IPv6 address...
	if pIP := net.ParseIP(rawAddress); pIP != nil && strings.Contains(rawAddress, ":") {
		addressFmt = "[%s]:%d"
	}

	return fmt.Sprintf(addressFmt, rawAddress, port)
}
