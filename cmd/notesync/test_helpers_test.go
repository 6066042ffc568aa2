package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"notesync/internal/config"
	"notesync/internal/daemon"
	"notesync/internal/ipc"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/runner"
	"notesync/internal/syncer"
	"notesync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakeRemote
	store      *notes.Store
	socketPath string
	configPath string
	logPath    string
}

// setupCLIConfig writes a config file pointing at a fake remote without
// starting a daemon.
func setupCLIConfig(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NOTESYNC_AUTH_TOKEN", "")
	t.Setenv("NOTESYNC_ACCOUNT", "")

	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(fake))
	cfg.Sync.IntervalMinutes = 0

	configPath := filepath.Join(homeDir, ".config", "notesync", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		fake:       fake,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
		logPath:    filepath.Join(cfg.Paths.LogDir, "notesync.log"),
	}
}

// setupCLITestEnv additionally runs a daemon and its IPC server on the
// configured socket. The daemon's startup session has finished on return.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := setupCLIConfig(t)

	store := testsupport.MustOpenStore(t, env.cfg)
	env.store = store

	logger := logging.NewNop()
	s, err := syncer.NewFromConfig(env.cfg, store, logger)
	if err != nil {
		t.Fatalf("syncer.NewFromConfig: %v", err)
	}
	d, err := daemon.New(env.cfg, store, logger, runner.NewFromConfig(env.cfg, s, logger))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	d.WaitSync()

	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
