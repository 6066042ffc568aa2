// Package services defines shared utilities consumed by the sync engine and
// its remote integration.
//
// Key responsibilities:
//   - Context helpers that stamp sync session IDs, step names, note row IDs,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     map failures onto terminal states (network vs internal vs cancelled).
//
// Use these helpers when wiring new sync logic so error handling and
// observability stay uniform across the engine.
package services
