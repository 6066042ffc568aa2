// Package subrecord tracks field-level changes to a note's structured
// sub-record and commits them to the local store.
//
// A Tracker captures the persisted values, accumulates a diff-set from remote
// snapshots or local setters, and writes only the changed fields. Commits may
// be guarded by the owning note's version counter; a guard miss is a benign
// race that keeps the diff-set for the next pass.
package subrecord
