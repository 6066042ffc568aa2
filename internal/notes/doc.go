// Package notes persists the local folder and note tree in SQLite.
//
// Two write paths exist. Local edits (CreateNote, EditNote, MoveNote, ...)
// bump the row's version counter and raise its local-modified flag. Engine
// writes (Materialize*, ApplyRemote*, SetRemoteID, ...) never bump the version,
// so a guard captured by the sync engine is only invalidated by a concurrent
// local edit. Guarded engine writes report whether the guard held.
package notes
