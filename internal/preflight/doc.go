// Package preflight verifies that the local environment can run a sync:
// writable data and log directories, configured credentials, and a reachable
// task service. The daemon logs failing checks at startup and the CLI prints
// them in `notesync status`.
package preflight
