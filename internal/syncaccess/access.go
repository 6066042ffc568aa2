package syncaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"notesync/internal/config"
	"notesync/internal/ipc"
	"notesync/internal/notes"
	"notesync/internal/runner"
	"notesync/internal/syncer"
)

// Outcome reports what a Start call did.
type Outcome struct {
	Started bool
	Message string
	// Result is set when the caller waited for the session.
	Result *ipc.SessionResult
}

// Access starts and cancels sync sessions, either through the daemon or in
// the calling process.
type Access interface {
	Start(ctx context.Context, wait bool) (Outcome, error)
	Cancel(ctx context.Context) (bool, string, error)
	// Remote reports whether sessions run in the daemon.
	Remote() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Start(_ context.Context, wait bool) (Outcome, error) {
	resp, err := a.client.SyncStart(wait)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Started: resp.Started, Message: resp.Message, Result: resp.Result}, nil
}

func (a *ipcAccess) Cancel(context.Context) (bool, string, error) {
	resp, err := a.client.SyncCancel()
	if err != nil {
		return false, "", err
	}
	return resp.Cancelled, resp.Message, nil
}

func (a *ipcAccess) Remote() bool { return true }

// NewLocalAccess returns an Access that runs sessions in this process
// against store. Sessions still take the shared sync lock.
func NewLocalAccess(cfg *config.Config, store *notes.Store, logger *slog.Logger, progress syncer.ProgressFunc) (Access, error) {
	s, err := syncer.NewFromConfig(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	r := runner.NewFromConfig(cfg, s, logger, runner.WithProgressListener(progress))
	return &localAccess{runner: r}, nil
}

type localAccess struct {
	runner *runner.Runner
}

// Start always waits: the session would die with the process otherwise.
func (a *localAccess) Start(ctx context.Context, _ bool) (Outcome, error) {
	started, err := a.runner.Start(ctx, nil)
	if errors.Is(err, runner.ErrLockHeld) {
		return Outcome{Message: "another process is syncing"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("start sync: %w", err)
	}
	if !started {
		return Outcome{Message: "sync already running"}, nil
	}
	a.runner.Wait()
	return Outcome{
		Started: true,
		Message: "sync finished",
		Result:  ipc.FromResult(a.runner.Status().LastResult),
	}, nil
}

func (a *localAccess) Cancel(context.Context) (bool, string, error) {
	if a.runner.Cancel() {
		return true, "cancellation requested", nil
	}
	return false, "no sync running", nil
}

func (a *localAccess) Remote() bool { return false }
