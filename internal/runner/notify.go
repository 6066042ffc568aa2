package runner

import (
	"context"
	"errors"
	"log/slog"

	"notesync/internal/logging"
	"notesync/internal/syncer"
)

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, result syncer.Result) {
	if r.notifier == nil {
		return
	}
	var err error
	switch result.State {
	case syncer.StateSuccess:
		err = r.notifier.NotifySyncCompleted(ctx,
			result.Stats.RemoteChanges(), result.Stats.LocalChanges(), result.Stats.Deferred, result.Duration())
	case syncer.StateCancelled:
		err = r.notifier.NotifySyncCancelled(ctx)
	default:
		err = r.notifier.NotifySyncFailed(ctx, result.State.String(), result.Err)
	}
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, could not send sync notification")
		return
	}
	logger.Debug("sync notification failed", logging.Error(err), logging.String("state", result.State.String()))
}
