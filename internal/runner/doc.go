// Package runner drives sync sessions in the background.
//
// A Runner allows one active session per process and, through a lock file,
// one per store across processes. Callers start a session, observe its
// progress through Status, cancel it cooperatively, and receive exactly one
// completion callback with the terminal result. Completion also fans out to
// the notifications service.
package runner
