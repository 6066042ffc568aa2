// Package daemon runs notesyncd: it holds the single-instance lock, starts a
// sync session every configured interval, and exposes start, cancel, and
// status operations to the IPC server.
//
// Session exclusivity and notifications belong to the runner package; the
// daemon only decides when to ask for a session.
package daemon
