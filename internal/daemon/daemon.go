package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"notesync/internal/config"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/notifications"
	"notesync/internal/preflight"
	"notesync/internal/runner"
	"notesync/internal/syncer"
)

// Daemon schedules sync sessions and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *notes.Store
	runner   *runner.Runner
	logPath  string
	interval time.Duration

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	nextRun atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Sync         runner.StatusSummary
	Counts       notes.Counts
	CountsError  string
	NextSync     time.Time
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *notes.Store, logger *slog.Logger, r *runner.Runner) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || r == nil {
		return nil, errors.New("daemon requires config, store, logger, and runner")
	}

	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		runner:   r,
		logPath:  filepath.Join(cfg.Paths.LogDir, "notesync.log"),
		interval: cfg.SyncInterval(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, starts the first session, and begins
// interval scheduling when an interval is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another notesync daemon instance is already running")
	}

	d.logPreflight(ctx)

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	loopCtx := d.ctx
	d.mu.Unlock()

	d.running.Store(true)
	d.trigger(loopCtx, "startup")
	if d.interval > 0 {
		d.wg.Add(1)
		go d.schedule(loopCtx)
	}

	d.logger.Info("notesync daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.interval),
	)
	return nil
}

// Stop cancels scheduling and any active session, then releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.mu.Unlock()

	d.wg.Wait()
	d.runner.Cancel()
	d.runner.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("notesync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) schedule(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.nextRun.Store(time.Now().Add(d.interval).UnixNano())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.nextRun.Store(time.Now().Add(d.interval).UnixNano())
			d.trigger(ctx, "interval")
		}
	}
}

func (d *Daemon) trigger(ctx context.Context, reason string) {
	started, err := d.runner.Start(ctx, d.onComplete)
	switch {
	case errors.Is(err, runner.ErrLockHeld):
		d.logger.Info("sync skipped; another process is syncing", logging.String("reason", reason))
	case err != nil:
		logging.WarnWithContext(d.logger, "scheduled sync could not start", "sync_schedule_failed",
			logging.Error(err),
			logging.String("reason", reason),
			logging.String(logging.FieldImpact, "the next interval will try again"),
		)
	case !started:
		d.logger.Debug("sync already running", logging.String("reason", reason))
	default:
		d.logger.Debug("sync triggered", logging.String("reason", reason))
	}
}

func (d *Daemon) onComplete(result syncer.Result) {
	attrs := []logging.Attr{
		logging.String(logging.FieldSessionID, result.SessionID),
		logging.String("state", result.State.String()),
		logging.Int("remote_changes", result.Stats.RemoteChanges()),
		logging.Int("local_changes", result.Stats.LocalChanges()),
		logging.Int("deferred", result.Stats.Deferred),
		logging.Duration("duration", result.Duration()),
	}
	switch result.State {
	case syncer.StateSuccess, syncer.StateCancelled:
		d.logger.Info("sync session finished", logging.Args(attrs...)...)
	default:
		attrs = append(attrs, logging.Error(result.Err))
		logging.WarnWithContext(d.logger, "sync session failed", "sync_failed", attrs...)
	}
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "sync sessions are likely to fail"),
		)
	}
}

// StartSync asks for a session outside the schedule. The session is bound to
// the daemon's lifetime, not to the caller's request.
func (d *Daemon) StartSync(context.Context) (bool, string, error) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return false, "daemon not running", errors.New("daemon not running")
	}

	started, err := d.runner.Start(ctx, d.onComplete)
	switch {
	case errors.Is(err, runner.ErrLockHeld):
		return false, "another process is syncing", nil
	case err != nil:
		return false, "failed to start sync", err
	case !started:
		return false, "sync already running", nil
	}
	return true, "sync started", nil
}

// CancelSync requests cancellation of the active session.
func (d *Daemon) CancelSync(context.Context) (bool, string) {
	if d.runner.Cancel() {
		return true, "cancellation requested"
	}
	return false, "no sync running"
}

// WaitSync blocks until the active session, if any, has finished.
func (d *Daemon) WaitSync() {
	d.runner.Wait()
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (notes.DatabaseHealth, error) {
	if d.store == nil {
		return notes.DatabaseHealth{}, errors.New("notes store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Sync:         d.runner.Status(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if next := d.nextRun.Load(); next > 0 && status.Running {
		status.NextSync = time.Unix(0, next)
	}
	counts, err := d.store.Counts(ctx)
	if err != nil {
		status.CountsError = err.Error()
	} else {
		status.Counts = counts
	}
	return status
}
