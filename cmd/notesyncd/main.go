// Command notesyncd runs the notesync daemon in the foreground, for service
// managers that supervise the process themselves.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"notesync/internal/config"
	"notesync/internal/daemonrun"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	if err := daemonrun.Run(ctx, cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}
