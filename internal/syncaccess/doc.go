// Package syncaccess gives the CLI one way to start and cancel sync sessions
// whether or not notesyncd is running.
package syncaccess
