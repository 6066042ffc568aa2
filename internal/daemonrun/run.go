package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"notesync/internal/config"
	"notesync/internal/daemon"
	"notesync/internal/ipc"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/runner"
	"notesync/internal/syncer"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "notesyncd.pid")
}

// Run starts the notesync daemon and blocks until a signal or a Shutdown call.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := notes.Open(cfg)
	if err != nil {
		logger.Error("open notes store", logging.Error(err))
		return err
	}

	s, err := syncer.NewFromConfig(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("configure sync: %w", err)
	}
	r := runner.NewFromConfig(cfg, s, logger)

	d, err := daemon.New(cfg, store, logger, r)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("notesync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("base_url", cfg.Remote.BaseURL),
		logging.String("account", cfg.Remote.Account),
		logging.Bool("token_file", cfg.Remote.TokenFile != ""),
		logging.Duration("interval", cfg.SyncInterval()),
		logging.String("database", cfg.DatabasePath()),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
