// Package daemonctl launches, stops, and inspects notesyncd on behalf of the
// CLI.
package daemonctl
