package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"notesync/internal/config"
	"notesync/internal/ipc"
	"notesync/internal/notes"
	"notesync/internal/preflight"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Launch starts a detached `notesync daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless its socket already answers.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		client.Close()
		return StartResult{State: StartStateAlreadyRunning}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	client.Close()
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// StopAndTerminate asks the daemon to exit and kills it if it is still
// reachable after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if IsDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		pid = status.PID
	}
	resp, err := client.Shutdown()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp != nil && resp.Accepted}

	if waitForShutdown(socketPath, gracePeriod) {
		return result, nil
	}
	if cfg == nil {
		return result, errors.New("daemon did not stop and no configuration is available to locate it")
	}
	killed, err := forceKill(cfg.Paths.DataDir, pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

func waitForShutdown(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return true
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func forceKill(dataDir string, fallbackPID int) (int, error) {
	pidPath := filepath.Join(dataDir, "notesyncd.pid")
	pid := fallbackPID
	if data, err := os.ReadFile(pidPath); err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	return pid, nil
}

// Snapshot is the status shown by `notesync status`, whether or not the
// daemon is reachable.
type Snapshot struct {
	Status    *ipc.StatusResponse
	Reachable bool
	Checks    []preflight.Result
}

// BuildStatusSnapshot asks the daemon for status and falls back to reading
// the note store directly when it is not running.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	snap := Snapshot{Status: &ipc.StatusResponse{DatabasePath: cfg.DatabasePath(), LockPath: cfg.DaemonLockPath()}}

	if client, err := ipc.Dial(socketPath); err == nil {
		resp, statusErr := client.Status()
		client.Close()
		if statusErr == nil && resp != nil {
			snap.Status = resp
			snap.Reachable = true
		}
	}

	if !snap.Reachable {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		counts, err := offlineCounts(queryCtx, cfg)
		if err != nil {
			snap.Status.CountsError = err.Error()
		} else {
			snap.Status.Counts = ipc.NoteCounts(counts)
		}
	}

	snap.Checks = preflight.RunAll(ctx, cfg)
	return snap, nil
}

func offlineCounts(ctx context.Context, cfg *config.Config) (notes.Counts, error) {
	if _, err := os.Stat(cfg.DatabasePath()); errors.Is(err, os.ErrNotExist) {
		return notes.Counts{}, nil
	}
	store, err := notes.Open(cfg)
	if err != nil {
		return notes.Counts{}, err
	}
	defer store.Close()
	return store.Counts(ctx)
}

// IsDaemonUnavailable reports whether a dial error means nothing is listening.
func IsDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
