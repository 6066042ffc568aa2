// Package entity models the synchronizable nodes exchanged with the remote
// task-list service and the wire structures that carry them.
//
// A Node is one of three closed variants: a TaskList (a local folder), a Task
// (a local note), or the Meta task that persists the folder mapping and sync
// watermark. Variant behaviour lives in a single dispatch table keyed by Kind
// so call sites stay polymorphic without an open type hierarchy.
//
// The package is pure data and logic; it performs no I/O.
package entity
