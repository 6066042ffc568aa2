package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"notesync/internal/config"
	"notesync/internal/logging"
	"notesync/internal/notifications"
	"notesync/internal/services"
	"notesync/internal/syncer"
)

// ErrLockHeld is returned by Start when another process holds the sync lock.
var ErrLockHeld = errors.New("sync lock held by another process")

// Syncer runs one sync session.
type Syncer interface {
	Run(ctx context.Context, progress syncer.ProgressFunc) syncer.Result
}

// Runner owns at most one active sync session.
type Runner struct {
	syncer   Syncer
	notifier notifications.Service
	logger   *slog.Logger
	lockPath string
	lock     *flock.Flock
	listener syncer.ProgressFunc
	now      func() time.Time

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	sessionID  string
	step       string
	progress   string
	startedAt  time.Time
	lastResult *syncer.Result
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithNotifier sets the service told about every terminal state.
func WithNotifier(notifier notifications.Service) Option {
	return func(r *Runner) { r.notifier = notifier }
}

// WithLockPath guards sessions with a lock file shared across processes.
func WithLockPath(path string) Option {
	return func(r *Runner) {
		r.lockPath = path
		if path != "" {
			r.lock = flock.New(path)
		} else {
			r.lock = nil
		}
	}
}

// WithProgressListener forwards progress messages to fn.
func WithProgressListener(fn syncer.ProgressFunc) Option {
	return func(r *Runner) { r.listener = fn }
}

// New constructs a Runner around s.
func New(s Syncer, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		syncer: s,
		logger: logging.NewComponentLogger(logger, "runner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromConfig wires the lock file and notifier from cfg.
func NewFromConfig(cfg *config.Config, s Syncer, logger *slog.Logger, opts ...Option) *Runner {
	base := []Option{
		WithLockPath(cfg.SyncLockPath()),
		WithNotifier(notifications.NewService(cfg)),
	}
	return New(s, logger, append(base, opts...)...)
}

// Start launches a session in the background. It returns false without an
// error when a session is already active in this process, and false with
// ErrLockHeld when another process is syncing. onComplete, when non-nil, runs
// once with the terminal result before the runner accepts a new Start.
func (r *Runner) Start(ctx context.Context, onComplete func(syncer.Result)) (bool, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false, nil
	}
	if r.lock != nil {
		ok, err := r.lock.TryLock()
		if err != nil {
			r.mu.Unlock()
			return false, fmt.Errorf("acquire sync lock: %w", err)
		}
		if !ok {
			r.mu.Unlock()
			return false, ErrLockHeld
		}
	}

	sessionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(services.WithSessionID(ctx, sessionID))
	r.running = true
	r.cancel = cancel
	r.sessionID = sessionID
	r.step = ""
	r.progress = ""
	r.startedAt = r.now()
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	go r.run(runCtx, cancel, done, onComplete)
	return true, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, onComplete func(syncer.Result)) {
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("sync session started", logging.String("lock", r.lockPath))

	result := r.syncer.Run(ctx, r.onProgress)
	cancel()

	r.mu.Lock()
	stored := result
	r.lastResult = &stored
	r.mu.Unlock()

	r.notify(context.WithoutCancel(ctx), logger, result)
	if onComplete != nil {
		onComplete(result)
	}
	r.release(logger, done)
}

// release frees the session slot and the lock file, then wakes Wait callers.
func (r *Runner) release(logger *slog.Logger, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(done)
	r.running = false
	r.cancel = nil
	if r.lock == nil {
		return
	}
	if err := r.lock.Unlock(); err != nil {
		logging.WarnWithContext(logger, "failed to release sync lock", "sync_lock_release_failed",
			logging.Error(err),
			logging.String("lock", r.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if no sync is running"),
			logging.String(logging.FieldImpact, "other processes cannot sync until the lock is released"),
		)
	}
}

func (r *Runner) onProgress(step, message string) {
	r.mu.Lock()
	r.step = step
	r.progress = message
	listener := r.listener
	r.mu.Unlock()

	if listener != nil {
		listener(step, message)
	}
}

// Cancel requests cancellation of the active session. It reports whether a
// session was running; the session stops at its next checkpoint.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	logging.WithSession(r.logger, r.sessionID).Info("sync cancellation requested")
	return true
}

// Wait blocks until the active session, if any, has completed. It returns
// at once when no session was ever started.
func (r *Runner) Wait() {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a session is active.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
