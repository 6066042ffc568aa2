// Package logging assembles structured slog loggers and formatting helpers used
// across notesync.
//
// It owns the configurable console/JSON handlers, rotates file output, and
// exposes context-aware helpers so sync code can tag log lines with session
// IDs, step names, note row IDs, and correlation IDs. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
