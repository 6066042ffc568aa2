// Package syncer reconciles the local note store with the remote task-list
// service.
//
// A Run is one session made of sequential steps: login, metadata load, local
// folder push, remote list pull, per-folder note reconciliation and the
// metadata commit. Cancellation is checked between steps and between folder
// pairs, never during a network call. Every session resolves to exactly one
// terminal State.
//
// Engine writes to the local store are guarded by the note version observed
// when the diff was taken. A guard miss defers the item to the next session
// and never fails the run.
package syncer
