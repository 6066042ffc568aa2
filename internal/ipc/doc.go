// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The wire types are flat DTOs so that the CLI never imports daemon or syncer
// internals to render status.
package ipc
