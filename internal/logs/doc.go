// Package logs reads the notesync log file for `notesync logs` and the
// daemon's LogTail RPC.
//
// A negative offset returns the last N lines; a non-negative offset resumes
// from a previous read, optionally polling until new lines appear. A match
// string narrows output to one sync session.
package logs
