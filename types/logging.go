package types

import "log/slog"

// LevelTrace sits one step below slog's debug level, following slog's
// four-unit level spacing. It is meant for per-event log lines that would
// swamp debug output.
const LevelTrace = slog.Level(slog.LevelDebug - 4)
