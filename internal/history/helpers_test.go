package history

import (
	"io"
	"log/slog"
)

// testLogger returns a logger that discards output so tests stay quiet and
// never touch the per-service log file.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
