// Package daemonrun assembles and runs the notesyncd process: logger, pid
// file, note store, sync runner, daemon, and IPC server.
package daemonrun
