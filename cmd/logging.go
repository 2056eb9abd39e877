package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flowtap/flowtap/probes/ovs"
)

const (
	UfidKey   string = "ufid"
	ResultKey string = "result"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}

	// Render flow UFIDs the way ovs-dpctl would.
	if a.Key == UfidKey {
		ufid, ok := a.Value.Any().(ovs.Ufid)
		if ok {
			return slog.Attr{Key: a.Key, Value: slog.StringValue(ufid.String())}
		}
	}

	// Filter verdicts read much better in hex.
	if a.Key == ResultKey {
		// When slog gobbles the verdict it becomes a uint64 instead of
		// a uint32 apparently...
		result, ok := a.Value.Any().(uint64)
		if ok {
			return slog.Attr{Key: a.Key, Value: slog.StringValue(fmt.Sprintf("%#x", result))}
		}
	}

	return a
}
