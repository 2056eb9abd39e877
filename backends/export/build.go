package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowtap/flowtap/types"
)

const (
	RECORD_VERSION = 1

	TIME_FORMAT = "2006-01-02T15:04:05.999999999Z07:00"

	// Pre-formatted syslog (RFC 5424) header some collectors insist on.
	SYSLOG_HEADER = "<134>1 %s %s flowtap - event-json - "
)

type exporterInfo struct {
	Hostname  string   `json:"hostname,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

type record struct {
	Version   int          `json:"version"`
	EmittedAt string       `json:"emittedAt"`
	Exporter  exporterInfo `json:"exporter"`
	Event     types.Event  `json:"event"`
}

func (b *ExportBackend) buildRecord(ev types.Event) ([]byte, error) {
	now := time.Now().UTC().Format(TIME_FORMAT)

	payload, err := json.Marshal(record{
		Version:   RECORD_VERSION,
		EmittedAt: now,
		Exporter:  b.exporter,
		Event:     ev,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling the record: %w", err)
	}

	if b.PrependSyslog {
		syslogHeader := []byte(fmt.Sprintf(SYSLOG_HEADER, now, b.exporter.Hostname))
		payload = append(syslogHeader, payload...)
	}

	return payload, nil
}
