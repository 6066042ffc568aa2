// Package logstream prints daemon log lines for the CLI, reading through the
// daemon's IPC tail when it runs and from the log file otherwise.
package logstream
