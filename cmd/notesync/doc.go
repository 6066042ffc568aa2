// Command notesync manages local notes and their sync with a remote task-list
// service. Sync commands talk to notesyncd over its socket when it is running
// and run the session in-process otherwise.
package main
